package dispatch

import (
	"encoding/base64"
	"strconv"
	"strings"
)

// BinaryToken stands in for a binary argument in the metadata parameter
// string, which cannot carry payloads.
const BinaryToken = "DATA"

// Limits are the ceilings a dispatch enforces. Zero disables a ceiling.
type Limits struct {
	MaxFileSize   int64
	MaxResultSize int
}

// CallPlan is a resolved procedure plus its typed arguments, handed from
// BuildCall to the executor without a textual round trip.
type CallPlan struct {
	Procedure string
	Args      []Param
}

// BuildCall turns resolved metadata and escaped parameters into a plan.
// Binary arguments above the file-size ceiling are rejected here, before
// any statement is prepared.
func BuildCall(meta ProcedureMetadata, rptCd string, params []Param, limits Limits) (CallPlan, error) {
	if err := checkBinarySizes(StageBuild, rptCd, params, limits.MaxFileSize); err != nil {
		return CallPlan{}, err
	}
	args := make([]Param, len(params))
	copy(args, params)
	return CallPlan{Procedure: meta.Procedure, Args: args}, nil
}

func checkBinarySizes(stage Stage, rptCd string, params []Param, limit int64) error {
	if limit <= 0 {
		return nil
	}
	for _, p := range params {
		if p.IsBinary() && int64(len(p.data)) > limit {
			return sizeError(stage, rptCd, len(p.data), limit)
		}
	}
	return nil
}

// String renders name('a', 'b', [base64]) with embedded quotes doubled.
func (p CallPlan) String() string {
	return p.render(false)
}

// Redacted renders like String but replaces binary payloads with their size.
func (p CallPlan) Redacted() string {
	return p.render(true)
}

func (p CallPlan) render(redact bool) string {
	var b strings.Builder
	b.WriteString(p.Procedure)
	b.WriteByte('(')
	for i, a := range p.Args {
		if i > 0 {
			b.WriteString(", ")
		}
		if a.IsBinary() {
			b.WriteByte('[')
			if redact {
				b.WriteString(strconv.Itoa(len(a.data)))
				b.WriteString(" bytes")
			} else {
				b.WriteString(base64.StdEncoding.EncodeToString(a.data))
			}
			b.WriteByte(']')
			continue
		}
		b.WriteByte('\'')
		b.WriteString(strings.ReplaceAll(a.text, "'", "''"))
		b.WriteByte('\'')
	}
	b.WriteByte(')')
	return b.String()
}

// metadataValues substitutes BinaryToken for binary arguments.
func metadataValues(params []Param) []string {
	out := make([]string, len(params))
	for i, p := range params {
		if p.IsBinary() {
			out[i] = BinaryToken
			continue
		}
		out[i] = p.text
	}
	return out
}
