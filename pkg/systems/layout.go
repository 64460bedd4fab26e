// pkg/systems/layout.go
// Memory layout analysis for structures shared between processes
//
// LEARN: A struct placed in shared memory is a wire format. Every process
// that maps it must agree on the size, alignment, and offset of every
// field. Go gives no cross-build guarantee, so we describe the layout at
// runtime and reduce it to a fingerprint that both sides can compare.
//
// Key concepts:
// 1. unsafe.Pointer can be converted to/from any pointer type
// 2. Struct layout follows platform alignment rules
// 3. Same binary, same layout: the fingerprint detects anything else

package systems

import (
	"errors"
	"fmt"
	"reflect"
	"strings"
	"unsafe"

	"github.com/cespare/xxhash/v2"
)

// Common errors for locating structures inside a mapping
var (
	ErrOutOfRange = errors.New("layout: structure does not fit in mapping")
	ErrMisaligned = errors.New("layout: structure offset is misaligned")
)

// === Memory Layout Analysis ===

// StructField describes a single field in a struct layout.
type StructField struct {
	Name      string  // Field name
	Type      string  // Field type as string
	Size      uintptr // Size in bytes
	Alignment uintptr // Alignment requirement
	Offset    uintptr // Offset from struct start
	Padding   uintptr // Padding bytes before this field
}

// StructLayout describes the complete memory layout of a struct.
type StructLayout struct {
	Name         string        // Struct type name
	Size         uintptr       // Total size including padding
	Alignment    uintptr       // Alignment requirement
	Fields       []StructField // Individual field info
	TotalPadding uintptr       // Total wasted padding bytes
}

// AnalyzeStruct returns the memory layout of any struct type.
//
// LEARN: The same information is available at compile time via
// unsafe.Sizeof, unsafe.Alignof, and unsafe.Offsetof, but reflection
// lets us walk nested fields generically.
func AnalyzeStruct(v any) StructLayout {
	t := reflect.TypeOf(v)

	// Handle pointer to struct
	if t.Kind() == reflect.Ptr {
		t = t.Elem()
	}

	if t.Kind() != reflect.Struct {
		return StructLayout{
			Name:      t.String(),
			Size:      t.Size(),
			Alignment: uintptr(t.Align()),
		}
	}

	layout := StructLayout{
		Name:      t.String(),
		Size:      t.Size(),
		Alignment: uintptr(t.Align()),
		Fields:    make([]StructField, t.NumField()),
	}

	var prevEnd uintptr
	for i := 0; i < t.NumField(); i++ {
		field := t.Field(i)

		padding := field.Offset - prevEnd
		layout.TotalPadding += padding

		layout.Fields[i] = StructField{
			Name:      field.Name,
			Type:      field.Type.String(),
			Size:      field.Type.Size(),
			Alignment: uintptr(field.Type.Align()),
			Offset:    field.Offset,
			Padding:   padding,
		}

		prevEnd = field.Offset + field.Type.Size()
	}

	// Trailing padding
	if prevEnd < t.Size() {
		layout.TotalPadding += t.Size() - prevEnd
	}

	return layout
}

// Fingerprint reduces the layout to a 64-bit value.
//
// LEARN: Two processes built from the same source on the same platform
// produce the same fingerprint. A process built with a different field
// order, field size, or architecture does not, and attaching to its shared
// block is refused instead of silently reading garbage. The value is never
// zero, so an all-zero (never initialized) block cannot match.
func (l StructLayout) Fingerprint() uint64 {
	d := xxhash.New()
	fmt.Fprintf(d, "%s/%d/%d;", l.Name, l.Size, l.Alignment)
	for _, f := range l.Fields {
		fmt.Fprintf(d, "%s:%s@%d+%d;", f.Name, f.Type, f.Offset, f.Size)
	}
	sum := d.Sum64()
	if sum == 0 {
		sum = 1
	}
	return sum
}

// String returns a human-readable representation of struct layout.
func (l StructLayout) String() string {
	var b strings.Builder

	fmt.Fprintf(&b, "=== Struct: %s ===\n", l.Name)
	fmt.Fprintf(&b, "Size: %d bytes, Alignment: %d bytes, Padding: %d bytes\n",
		l.Size, l.Alignment, l.TotalPadding)
	fmt.Fprintf(&b, "Fingerprint: %#016x\n\n", l.Fingerprint())

	fmt.Fprintf(&b, "Offset | Size | Align | Pad | Field\n")
	fmt.Fprintf(&b, "-------|------|-------|-----|------\n")

	for _, f := range l.Fields {
		padStr := ""
		if f.Padding > 0 {
			padStr = fmt.Sprintf("+%d", f.Padding)
		}
		fmt.Fprintf(&b, "%6d | %4d | %5d | %3s | %s %s\n",
			f.Offset, f.Size, f.Alignment, padStr, f.Name, f.Type)
	}

	return b.String()
}

// === Locating Structures in Mapped Memory ===

// At returns a *T located at byte offset off inside mem.
//
// LEARN: This is the only place the module turns mapped bytes into a typed
// pointer. It checks the two things that make such a cast undefined
// behavior: running past the end of the mapping, and misalignment (atomic
// operations on a misaligned word fault on some architectures).
//
// The returned pointer is valid only while the mapping backing mem is alive.
func At[T any](mem []byte, off uintptr) (*T, error) {
	var zero T
	size := unsafe.Sizeof(zero)
	align := unsafe.Alignof(zero)

	if off > uintptr(len(mem)) || uintptr(len(mem))-off < size {
		return nil, ErrOutOfRange
	}

	base := unsafe.Pointer(unsafe.SliceData(mem))
	p := PtrAdd(base, off)
	if uintptr(p)%align != 0 {
		return nil, ErrMisaligned
	}
	return (*T)(p), nil
}

// PtrAdd performs pointer arithmetic, adding offset bytes to a pointer.
//
// WARNING: No bounds checking! Caller must ensure validity.
func PtrAdd(ptr unsafe.Pointer, offset uintptr) unsafe.Pointer {
	// LEARN: unsafe.Add keeps this a single pointer expression, so the
	// result is never held as a bare uintptr the GC cannot see.
	return unsafe.Add(ptr, offset)
}
