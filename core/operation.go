package core

import "fmt"

// OpType tags the Operation variant. The set is closed; every consumer
// switches exhaustively over these three values.
type OpType string

const (
	// OpInsert inserts Text at Pos.
	OpInsert OpType = "insert"
	// OpDelete removes Len bytes starting at Pos.
	OpDelete OpType = "delete"
	// OpRetain is a zero-effect placeholder spanning [Pos, Pos+Len). It
	// never mutates content but participates in transforms, which keeps
	// batch shapes stable when a delete is fully subsumed during a rebase.
	OpRetain OpType = "retain"
)

// Operation is a single position-based edit. It is a tagged union: Text is
// meaningful only for inserts, Len only for deletes and retains.
//
// Invariant (enforced by Apply): Pos ∈ [0, len(content)] at apply time,
// and Pos+Len must not run past the end of content.
type Operation struct {
	Type OpType `json:"type"`
	Pos  int    `json:"pos"`
	Text string `json:"text,omitempty"`
	Len  int    `json:"len,omitempty"`
}

// Insert constructs an insert operation.
func Insert(pos int, text string) Operation {
	return Operation{Type: OpInsert, Pos: pos, Text: text}
}

// Delete constructs a delete operation.
func Delete(pos, length int) Operation {
	return Operation{Type: OpDelete, Pos: pos, Len: length}
}

// Retain constructs a retain operation.
func Retain(pos, length int) Operation {
	return Operation{Type: OpRetain, Pos: pos, Len: length}
}

// Span returns the number of content bytes the operation covers at its
// current position: the inserted length for inserts, Len otherwise.
func (op Operation) Span() int {
	if op.Type == OpInsert {
		return len(op.Text)
	}
	return op.Len
}

// End returns the exclusive end position of the range the operation
// covers in the pre-image (Pos for inserts, Pos+Len for delete/retain).
func (op Operation) End() int {
	if op.Type == OpInsert {
		return op.Pos
	}
	return op.Pos + op.Len
}

// IsNoop reports whether applying the operation cannot change content.
func (op Operation) IsNoop() bool {
	switch op.Type {
	case OpInsert:
		return len(op.Text) == 0
	case OpDelete:
		return op.Len == 0
	default:
		return true
	}
}

// Validate checks the operation's range against content of the given
// length without applying it. It returns an error wrapping
// ErrMalformedOperation when the range is out of bounds.
func (op Operation) Validate(contentLen int) error {
	switch op.Type {
	case OpInsert:
		if op.Pos < 0 || op.Pos > contentLen {
			return fmt.Errorf("%w: insert at %d, content length %d", ErrMalformedOperation, op.Pos, contentLen)
		}
	case OpDelete, OpRetain:
		if op.Pos < 0 || op.Len < 0 || op.Pos+op.Len > contentLen {
			return fmt.Errorf("%w: %s [%d,%d), content length %d", ErrMalformedOperation, op.Type, op.Pos, op.Pos+op.Len, contentLen)
		}
	default:
		return fmt.Errorf("%w: unknown operation type %q", ErrMalformedOperation, op.Type)
	}
	return nil
}

// Apply applies the operation to content, returning the new content. The
// input is never mutated. Out-of-range operations return an error wrapping
// ErrMalformedOperation and leave the result empty.
func (op Operation) Apply(content string) (string, error) {
	if err := op.Validate(len(content)); err != nil {
		return "", err
	}
	switch op.Type {
	case OpInsert:
		return content[:op.Pos] + op.Text + content[op.Pos:], nil
	case OpDelete:
		return content[:op.Pos] + content[op.Pos+op.Len:], nil
	default: // OpRetain
		return content, nil
	}
}

// ApplyAll applies ops to content in order, failing fast on the first
// malformed operation.
func ApplyAll(content string, ops []Operation) (string, error) {
	var err error
	for i, op := range ops {
		content, err = op.Apply(content)
		if err != nil {
			return "", fmt.Errorf("op %d: %w", i, err)
		}
	}
	return content, nil
}

// String renders the operation for logs and error messages.
func (op Operation) String() string {
	switch op.Type {
	case OpInsert:
		return fmt.Sprintf("insert(%d, %q)", op.Pos, op.Text)
	case OpDelete:
		return fmt.Sprintf("delete(%d, %d)", op.Pos, op.Len)
	default:
		return fmt.Sprintf("retain(%d, %d)", op.Pos, op.Len)
	}
}
