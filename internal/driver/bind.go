package driver

import (
	"context"
	"fmt"
	"reflect"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/c4ffein/imapfw/pkg/edmp"
)

var (
	ctxType = reflect.TypeOf((*context.Context)(nil)).Elem()
	errType = reflect.TypeOf((*error)(nil)).Elem()
)

// BindTopics registers every exported method of target on the receiver,
// naming each topic after the method with its first letter lowered
// (Connect becomes "connect", SearchUIDs becomes "searchUIDs").
// Methods prefixed with Fw are framework hooks and stay unbound, as do
// variadic methods. A method whose first parameter is a context.Context
// receives ctx. The bound topic names are returned so a later rebind
// can forget them.
func BindTopics(ctx context.Context, r *edmp.Receiver, target any) []string {
	value := reflect.ValueOf(target)
	kind := value.Type()

	var topics []string
	for i := 0; i < value.NumMethod(); i++ {
		method := kind.Method(i)
		if strings.HasPrefix(method.Name, "Fw") || method.Type.IsVariadic() {
			continue
		}

		topic := lowerFirst(method.Name)
		doc := fmt.Sprintf("forwarded to %s.%s", kind.String(), method.Name)
		r.AcceptDoc(topic, doc, methodHandler(ctx, value.Method(i)))
		topics = append(topics, topic)
	}
	return topics
}

// methodHandler adapts one bound method to the handler contract:
// arguments are converted to the parameter types, a leading context
// parameter is satisfied from ctx, and a trailing error return becomes
// the handler's error.
func methodHandler(ctx context.Context, method reflect.Value) edmp.Handler {
	methodType := method.Type()

	return func(args ...any) (any, error) {
		var in []reflect.Value
		params := methodType.NumIn()
		next := 0

		for i := 0; i < params; i++ {
			want := methodType.In(i)
			if i == 0 && want == ctxType {
				in = append(in, reflect.ValueOf(ctx))
				continue
			}
			if next >= len(args) {
				return nil, fmt.Errorf("missing argument %d (%s)", next+1, want)
			}
			value, err := convertArg(args[next], want, next+1)
			if err != nil {
				return nil, err
			}
			in = append(in, value)
			next++
		}
		if next < len(args) {
			return nil, fmt.Errorf("got %d arguments, want %d", len(args), next)
		}

		return mapResults(method.Call(in))
	}
}

// convertArg coerces one incoming argument to the parameter type,
// allowing Go-convertible values such as an int where a uint32 is
// wanted.
func convertArg(arg any, want reflect.Type, position int) (reflect.Value, error) {
	if arg == nil {
		switch want.Kind() {
		case reflect.Chan, reflect.Func, reflect.Interface, reflect.Map, reflect.Pointer, reflect.Slice:
			return reflect.Zero(want), nil
		}
		return reflect.Value{}, fmt.Errorf("argument %d: cannot use nil as %s", position, want)
	}

	value := reflect.ValueOf(arg)
	switch {
	case value.Type().AssignableTo(want):
		return value, nil
	case value.Type().ConvertibleTo(want) && !isLossyConversion(value.Type(), want):
		return value.Convert(want), nil
	default:
		return reflect.Value{}, fmt.Errorf("argument %d: cannot use %T as %s", position, arg, want)
	}
}

// isLossyConversion rejects the convertible-but-surprising cases, like
// an integer turning into a one-rune string.
func isLossyConversion(from, to reflect.Type) bool {
	fromNumeric := isNumeric(from.Kind())
	toNumeric := isNumeric(to.Kind())
	return fromNumeric != toNumeric
}

func isNumeric(k reflect.Kind) bool {
	switch k {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64,
		reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64,
		reflect.Float32, reflect.Float64:
		return true
	}
	return false
}

// mapResults folds a method's return values into the handler contract:
// a trailing error is split off, no remaining value yields nil, one is
// returned bare and several come back as a tuple.
func mapResults(outs []reflect.Value) (any, error) {
	if len(outs) > 0 && outs[len(outs)-1].Type().Implements(errType) {
		if errValue := outs[len(outs)-1]; !errValue.IsNil() {
			return nil, errValue.Interface().(error)
		}
		outs = outs[:len(outs)-1]
	}

	switch len(outs) {
	case 0:
		return nil, nil
	case 1:
		return outs[0].Interface(), nil
	default:
		tuple := make(edmp.Tuple, len(outs))
		for i, out := range outs {
			tuple[i] = out.Interface()
		}
		return tuple, nil
	}
}

func lowerFirst(name string) string {
	r, size := utf8.DecodeRuneInString(name)
	return string(unicode.ToLower(r)) + name[size:]
}
