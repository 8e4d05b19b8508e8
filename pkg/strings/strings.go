// Package strings provides pooled string building used for error messages,
// type spellings and generated SQL in arrowhouse.
package strings

import (
	"fmt"
	"strings"
	"sync"
)

// Builder is a reusable byte buffer for building strings.
type Builder struct {
	buf []byte
}

// NewBuilder creates a new string builder
func NewBuilder(capacity int) *Builder {
	return &Builder{
		buf: make([]byte, 0, capacity),
	}
}

// WriteString appends a string to the builder
func (b *Builder) WriteString(s string) {
	b.buf = append(b.buf, s...)
}

// WriteByte appends a single byte to the builder
func (b *Builder) WriteByte(c byte) error {
	b.buf = append(b.buf, c)
	return nil
}

// Write implements io.Writer
func (b *Builder) Write(p []byte) (n int, err error) {
	b.buf = append(b.buf, p...)
	return len(p), nil
}

// String returns a copy of the accumulated content.
func (b *Builder) String() string {
	return string(b.buf)
}

// Len returns the current length
func (b *Builder) Len() int {
	return len(b.buf)
}

// Reset clears the builder while keeping its capacity
func (b *Builder) Reset() {
	b.buf = b.buf[:0]
}

// BuilderSize selects one of the builder pools.
type BuilderSize int

const (
	Small  BuilderSize = iota // < 1KB: identifiers, type names, error messages
	Medium                    // 1KB - 16KB: CREATE TABLE statements
)

var (
	smallBuilderPool = &sync.Pool{
		New: func() interface{} {
			return NewBuilder(1024)
		},
	}

	mediumBuilderPool = &sync.Pool{
		New: func() interface{} {
			return NewBuilder(16 * 1024)
		},
	}
)

func poolFor(size BuilderSize) *sync.Pool {
	if size == Medium {
		return mediumBuilderPool
	}
	return smallBuilderPool
}

// GetBuilder retrieves a pooled builder of the specified size
func GetBuilder(size BuilderSize) *Builder {
	builder := poolFor(size).Get().(*Builder)
	builder.Reset()
	return builder
}

// PutBuilder returns a builder to the appropriate pool
func PutBuilder(builder *Builder, size BuilderSize) {
	if builder == nil {
		return
	}
	builder.Reset()
	poolFor(size).Put(builder)
}

// Sprintf provides a pooled alternative to fmt.Sprintf
func Sprintf(format string, args ...interface{}) string {
	if len(args) == 0 {
		return format
	}

	builder := GetBuilder(Small)
	defer PutBuilder(builder, Small)

	fmt.Fprintf(builder, format, args...)
	return builder.String()
}

// JoinPooled joins strings using a pooled builder
func JoinPooled(parts []string, delimiter string) string {
	switch len(parts) {
	case 0:
		return ""
	case 1:
		return parts[0]
	}

	builder := GetBuilder(Small)
	defer PutBuilder(builder, Small)

	for i, s := range parts {
		if i > 0 {
			builder.WriteString(delimiter)
		}
		builder.WriteString(s)
	}
	return builder.String()
}

// QuoteIdentifier wraps a ClickHouse identifier in backticks, escaping
// embedded backticks and backslashes.
func QuoteIdentifier(name string) string {
	if !strings.ContainsAny(name, "`\\") {
		return "`" + name + "`"
	}
	builder := GetBuilder(Small)
	defer PutBuilder(builder, Small)

	builder.WriteByte('`')
	for i := 0; i < len(name); i++ {
		c := name[i]
		if c == '`' || c == '\\' {
			builder.WriteByte('\\')
		}
		builder.WriteByte(c)
	}
	builder.WriteByte('`')
	return builder.String()
}

// QuoteTable quotes a table name, splitting an optional database prefix
// at the first dot.
func QuoteTable(name string) string {
	if i := strings.IndexByte(name, '.'); i >= 0 {
		return QuoteIdentifier(name[:i]) + "." + QuoteIdentifier(name[i+1:])
	}
	return QuoteIdentifier(name)
}
