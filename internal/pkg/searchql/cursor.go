package searchql

// Cursor is a character-level view over the query source.
// Offsets passed to Peek are relative to the current position.
type Cursor interface {
	Peek(offset int) (byte, bool)
	Consume() (byte, bool)
	AtEnd() bool
}

// StringCursor reads characters from an in-memory string.
type StringCursor struct {
	input string
	pos   int
}

// NewStringCursor creates a cursor positioned at the start of input.
func NewStringCursor(input string) *StringCursor {
	return &StringCursor{input: input}
}

// Peek returns the character at the current position plus offset.
func (c *StringCursor) Peek(offset int) (byte, bool) {
	i := c.pos + offset
	if i < 0 || i >= len(c.input) {
		return 0, false
	}
	return c.input[i], true
}

// Consume returns the current character and advances past it.
func (c *StringCursor) Consume() (byte, bool) {
	if c.pos >= len(c.input) {
		return 0, false
	}
	ch := c.input[c.pos]
	c.pos++
	return ch, true
}

// AtEnd reports whether every character has been consumed.
func (c *StringCursor) AtEnd() bool {
	return c.pos >= len(c.input)
}

// ByteCursor reads characters from a caller-supplied buffer.
// The buffer must not be modified while the cursor is in use.
type ByteCursor struct {
	buf []byte
	pos int
}

// NewByteCursor creates a cursor positioned at the start of buf.
func NewByteCursor(buf []byte) *ByteCursor {
	return &ByteCursor{buf: buf}
}

func (c *ByteCursor) Peek(offset int) (byte, bool) {
	i := c.pos + offset
	if i < 0 || i >= len(c.buf) {
		return 0, false
	}
	return c.buf[i], true
}

func (c *ByteCursor) Consume() (byte, bool) {
	if c.pos >= len(c.buf) {
		return 0, false
	}
	ch := c.buf[c.pos]
	c.pos++
	return ch, true
}

func (c *ByteCursor) AtEnd() bool {
	return c.pos >= len(c.buf)
}
