// Package task registers named units of work, composes them into series and
// parallel groups and executes the resulting graph once per request.
package task

import "context"

// Body is the executable part of a leaf task. A nil return is success.
type Body func(ctx context.Context) error

// Kind tags the variant of a task node.
type Kind int

const (
	KindFunc Kind = iota
	KindSeries
	KindParallel
	kindName
)

func (k Kind) String() string {
	switch k {
	case KindFunc:
		return "func"
	case KindSeries:
		return "series"
	case KindParallel:
		return "parallel"
	default:
		return "name"
	}
}

type def struct {
	kind     Kind
	name     string
	body     Body
	children []Ref
	// deps marks the wrapper built by DependsOn: children[0] holds the
	// prerequisites and children[1] the declared body.
	deps bool
}

// Ref refers to a task: a registered name, an inline body or a composite of
// other refs. The zero Ref is invalid.
type Ref struct {
	def *def
}

// IsZero reports whether r refers to nothing.
func (r Ref) IsZero() bool { return r.def == nil }

// Func defines an inline leaf task.
func Func(body Body) Ref {
	return Ref{def: &def{kind: KindFunc, body: body}}
}

// Name refers to a task registered under name. It is resolved when the graph
// is compiled, not when the ref is created.
func Name(name string) Ref {
	return Ref{def: &def{kind: kindName, name: name}}
}

// Names is a shorthand for a slice of Name refs.
func Names(names ...string) []Ref {
	refs := make([]Ref, 0, len(names))
	for _, n := range names {
		refs = append(refs, Name(n))
	}
	return refs
}

// Series runs refs one after another and stops at the first failure.
func Series(refs ...Ref) Ref {
	return Ref{def: &def{kind: KindSeries, children: refs}}
}

// Parallel starts all refs at once and succeeds when every one succeeds.
func Parallel(refs ...Ref) Ref {
	return Ref{def: &def{kind: KindParallel, children: refs}}
}
