// Package pipeline composes request interceptors around a terminal handler.
// Every stage returns a value; nothing in the chain writes to a connection.
package pipeline

// Handler turns a request into a response.
type Handler[Req, Resp any] func(Req) Resp

// Interceptor wraps the rest of the chain. It may return without calling
// next to short-circuit every later stage.
type Interceptor[Req, Resp any] func(req Req, next Handler[Req, Resp]) Resp

type Pipeline[Req, Resp any] struct {
	terminal     Handler[Req, Resp]
	interceptors []Interceptor[Req, Resp]
	composed     Handler[Req, Resp]
}

// New builds a pipeline where the first interceptor is the outermost.
func New[Req, Resp any](terminal Handler[Req, Resp], interceptors ...Interceptor[Req, Resp]) *Pipeline[Req, Resp] {
	owned := make([]Interceptor[Req, Resp], 0, len(interceptors))
	for _, ic := range interceptors {
		if ic != nil {
			owned = append(owned, ic)
		}
	}

	p := &Pipeline[Req, Resp]{terminal: terminal, interceptors: owned}
	p.composed = compose(terminal, owned)
	return p
}

// With returns a new pipeline with extra interceptors placed inside the
// existing ones. The receiver is unchanged.
func (p *Pipeline[Req, Resp]) With(interceptors ...Interceptor[Req, Resp]) *Pipeline[Req, Resp] {
	merged := make([]Interceptor[Req, Resp], 0, len(p.interceptors)+len(interceptors))
	merged = append(merged, p.interceptors...)
	merged = append(merged, interceptors...)
	return New(p.terminal, merged...)
}

// Then keeps the interceptors and swaps the terminal handler.
func (p *Pipeline[Req, Resp]) Then(terminal Handler[Req, Resp]) *Pipeline[Req, Resp] {
	return New(terminal, p.interceptors...)
}

func (p *Pipeline[Req, Resp]) Run(req Req) Resp {
	return p.composed(req)
}

func (p *Pipeline[Req, Resp]) Handler() Handler[Req, Resp] {
	return p.composed
}

func compose[Req, Resp any](terminal Handler[Req, Resp], interceptors []Interceptor[Req, Resp]) Handler[Req, Resp] {
	next := terminal
	for i := len(interceptors) - 1; i >= 0; i-- {
		ic, inner := interceptors[i], next
		next = func(req Req) Resp {
			return ic(req, inner)
		}
	}

	return next
}
