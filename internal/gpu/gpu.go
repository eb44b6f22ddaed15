// Package gpu provides the rendering-context and surface abstraction used by
// the relay worker.
//
// A Context is bound to exactly one OS thread: the goroutine that created it
// must call runtime.LockOSThread before CreateContext and must perform every
// operation on the context and its surfaces from that thread. Contexts are
// not transferable after creation. Violating this is a programming defect,
// not a recoverable runtime condition.
//
// Resource lifetime is strictly ordered: every Surface created under a
// Context must be deleted before the Context is destroyed, and anything bound
// to the context's native handle (engine render contexts, texture sinks) must
// be released first as well.
package gpu

import "errors"

var (
	// ErrContextDestroyed is returned by operations on a destroyed context.
	ErrContextDestroyed = errors.New("gpu: context destroyed")

	// ErrNotCurrent is returned when a surface operation runs without the
	// owning context being current.
	ErrNotCurrent = errors.New("gpu: context not current")

	// ErrSurfaceDeleted is returned by operations on a deleted surface.
	ErrSurfaceDeleted = errors.New("gpu: surface deleted")

	// ErrBadDimensions is returned for non-positive surface dimensions.
	ErrBadDimensions = errors.New("gpu: dimensions must be positive")
)

// Provider creates rendering contexts. The relay worker calls CreateContext
// exactly once, on its own locked OS thread.
type Provider interface {
	CreateContext() (Context, error)
}

// Context is an offscreen-capable rendering context.
type Context interface {
	// MakeCurrent binds the context to the calling thread. It must be
	// called before any surface operation and again at shutdown entry.
	MakeCurrent() error

	// NativeHandle is the opaque handle handed to texture sinks and engine
	// render contexts created against this context.
	NativeHandle() uintptr

	// NewSurface allocates an offscreen render target (framebuffer plus
	// backing texture) of the given size.
	NewSurface(width, height int) (Surface, error)

	// Flush submits pending work without waiting for completion.
	Flush()

	// Finish blocks until all pending work has completed.
	Finish()

	// Destroy releases the context. All surfaces must be deleted first.
	Destroy() error
}

// Surface is an offscreen render target with a backing texture.
type Surface interface {
	// TextureID identifies the backing texture for sink publishes.
	TextureID() uint32

	// Size returns the surface dimensions.
	Size() (width, height int)

	// Upload replaces the surface contents with RGBA pixels, scaling when
	// the source dimensions differ from the surface size.
	Upload(pix []byte, width, height int) error

	// Clear fills the surface with a solid color.
	Clear(r, g, b, a uint8) error

	// BlitTo performs a scaled copy into dst on the GPU side.
	BlitTo(dst Surface) error

	// ReadPixels returns an RGBA snapshot of the surface contents.
	ReadPixels() ([]byte, error)

	// Delete releases the framebuffer and texture.
	Delete() error
}
