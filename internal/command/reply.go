package command

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/jmgilman/go/errors"
	"google.golang.org/protobuf/types/known/structpb"
)

// ReplyKind tags the shape of a Reply.
type ReplyKind int

const (
	ReplyNil ReplyKind = iota
	ReplyInt
	ReplyString
	ReplyBool
	ReplyArray
	ReplyStatus
)

// Reply is the result of a dispatched command.
type Reply struct {
	Kind  ReplyKind
	Int   int64
	Str   string // string payload or status text
	Bool  bool
	Array []string
}

func Nil() Reply                 { return Reply{Kind: ReplyNil} }
func Int(n int) Reply            { return Reply{Kind: ReplyInt, Int: int64(n)} }
func String(s string) Reply      { return Reply{Kind: ReplyString, Str: s} }
func Bool(b bool) Reply          { return Reply{Kind: ReplyBool, Bool: b} }
func Array(items []string) Reply { return Reply{Kind: ReplyArray, Array: items} }
func Status(s string) Reply      { return Reply{Kind: ReplyStatus, Str: s} }

// OK is the status returned by commands with no other result.
var OK = Status("OK")

// Format renders r the way redis-cli prints replies.
func Format(r Reply) string {
	switch r.Kind {
	case ReplyNil:
		return "(nil)"
	case ReplyInt:
		return fmt.Sprintf("(integer) %d", r.Int)
	case ReplyString:
		return strconv.Quote(r.Str)
	case ReplyBool:
		if r.Bool {
			return "(integer) 1"
		}
		return "(integer) 0"
	case ReplyStatus:
		return r.Str
	case ReplyArray:
		if len(r.Array) == 0 {
			return "(empty array)"
		}
		var b strings.Builder
		width := len(strconv.Itoa(len(r.Array)))
		for i, item := range r.Array {
			if i > 0 {
				b.WriteByte('\n')
			}
			fmt.Fprintf(&b, "%*d) %s", width, i+1, strconv.Quote(item))
		}
		return b.String()
	default:
		return fmt.Sprintf("(unknown reply %d)", r.Kind)
	}
}

// ToValue converts r to a protobuf Value for transport. Status replies are
// carried as {"status": text} so they stay distinct from plain strings.
func ToValue(r Reply) *structpb.Value {
	switch r.Kind {
	case ReplyInt:
		return structpb.NewNumberValue(float64(r.Int))
	case ReplyString:
		return structpb.NewStringValue(r.Str)
	case ReplyBool:
		return structpb.NewBoolValue(r.Bool)
	case ReplyArray:
		items := make([]*structpb.Value, len(r.Array))
		for i, s := range r.Array {
			items[i] = structpb.NewStringValue(s)
		}
		return structpb.NewListValue(&structpb.ListValue{Values: items})
	case ReplyStatus:
		return structpb.NewStructValue(&structpb.Struct{Fields: map[string]*structpb.Value{
			"status": structpb.NewStringValue(r.Str),
		}})
	default:
		return structpb.NewNullValue()
	}
}

// FromValue is the inverse of ToValue.
func FromValue(v *structpb.Value) (Reply, error) {
	switch k := v.GetKind().(type) {
	case nil, *structpb.Value_NullValue:
		return Nil(), nil
	case *structpb.Value_NumberValue:
		return Reply{Kind: ReplyInt, Int: int64(k.NumberValue)}, nil
	case *structpb.Value_StringValue:
		return String(k.StringValue), nil
	case *structpb.Value_BoolValue:
		return Bool(k.BoolValue), nil
	case *structpb.Value_ListValue:
		items := make([]string, 0, len(k.ListValue.GetValues()))
		for _, item := range k.ListValue.GetValues() {
			s, ok := item.GetKind().(*structpb.Value_StringValue)
			if !ok {
				return Reply{}, errors.New(errors.CodeInvalidInput, "array replies must contain strings")
			}
			items = append(items, s.StringValue)
		}
		return Array(items), nil
	case *structpb.Value_StructValue:
		status, ok := k.StructValue.GetFields()["status"]
		if !ok {
			return Reply{}, errors.New(errors.CodeInvalidInput, "struct reply without status")
		}
		return Status(status.GetStringValue()), nil
	default:
		return Reply{}, errors.Newf(errors.CodeInvalidInput, "unsupported reply value %T", k)
	}
}

// MarshalJSON encodes r the same way it travels over gRPC.
func (r Reply) MarshalJSON() ([]byte, error) {
	return ToValue(r).MarshalJSON()
}
