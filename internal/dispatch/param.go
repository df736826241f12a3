package dispatch

// ParamKind tags the two shapes a procedure argument can take.
type ParamKind uint8

const (
	KindText ParamKind = iota
	KindBinary
)

// Param is a single positional procedure argument: either text or a byte
// payload. The zero value is an empty text argument.
type Param struct {
	kind ParamKind
	text string
	data []byte
}

func Text(s string) Param {
	return Param{kind: KindText, text: s}
}

func Binary(b []byte) Param {
	if b == nil {
		b = []byte{}
	}
	return Param{kind: KindBinary, data: b}
}

// TextParams lifts a plain-track parameter list.
func TextParams(values []string) []Param {
	out := make([]Param, len(values))
	for i, v := range values {
		out[i] = Text(v)
	}
	return out
}

func (p Param) Kind() ParamKind { return p.kind }

func (p Param) IsBinary() bool { return p.kind == KindBinary }

func (p Param) Text() string { return p.text }

func (p Param) Bytes() []byte { return p.data }

// Len is the payload length in bytes.
func (p Param) Len() int {
	if p.kind == KindBinary {
		return len(p.data)
	}
	return len(p.text)
}
