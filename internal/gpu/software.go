package gpu

import (
	"fmt"
	"sync"
	"sync/atomic"
)

// SoftwareProvider creates CPU-backed contexts. It is the default backend:
// the engine render context writes decoded frames into surface memory and
// sinks read them back out, with the same thread-affinity and lifetime
// contract a native GL backend would impose.
type SoftwareProvider struct{}

// NewSoftwareProvider returns a Provider backed by CPU pixel buffers.
func NewSoftwareProvider() *SoftwareProvider {
	return &SoftwareProvider{}
}

// CreateContext creates a new software context.
func (p *SoftwareProvider) CreateContext() (Context, error) {
	return &softwareContext{}, nil
}

var contextSeq atomic.Uintptr

type softwareContext struct {
	mu        sync.Mutex
	handle    uintptr
	current   bool
	destroyed bool
	liveCount int
	texSeq    uint32
}

func (c *softwareContext) MakeCurrent() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.destroyed {
		return ErrContextDestroyed
	}
	c.current = true
	return nil
}

func (c *softwareContext) NativeHandle() uintptr {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.handle == 0 {
		c.handle = contextSeq.Add(1)
	}
	return c.handle
}

func (c *softwareContext) NewSurface(width, height int) (Surface, error) {
	if width <= 0 || height <= 0 {
		return nil, fmt.Errorf("%w: %dx%d", ErrBadDimensions, width, height)
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.destroyed {
		return nil, ErrContextDestroyed
	}
	if !c.current {
		return nil, ErrNotCurrent
	}
	c.texSeq++
	c.liveCount++
	return &softwareSurface{
		ctx:    c,
		tex:    c.texSeq,
		width:  width,
		height: height,
		pix:    make([]byte, width*height*4),
	}, nil
}

func (c *softwareContext) Flush()  {}
func (c *softwareContext) Finish() {}

func (c *softwareContext) Destroy() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.destroyed {
		return ErrContextDestroyed
	}
	if c.liveCount > 0 {
		// Destroying with live surfaces is a teardown-order defect in the
		// caller; the software backend tolerates it but reports it.
		c.destroyed = true
		return fmt.Errorf("gpu: context destroyed with %d live surfaces", c.liveCount)
	}
	c.destroyed = true
	c.current = false
	return nil
}

type softwareSurface struct {
	ctx     *softwareContext
	tex     uint32
	width   int
	height  int
	mu      sync.Mutex
	pix     []byte
	deleted bool
}

func (s *softwareSurface) TextureID() uint32 { return s.tex }

func (s *softwareSurface) Size() (int, int) { return s.width, s.height }

func (s *softwareSurface) check() error {
	if s.deleted {
		return ErrSurfaceDeleted
	}
	s.ctx.mu.Lock()
	defer s.ctx.mu.Unlock()
	if s.ctx.destroyed {
		return ErrContextDestroyed
	}
	if !s.ctx.current {
		return ErrNotCurrent
	}
	return nil
}

func (s *softwareSurface) Upload(pix []byte, width, height int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.check(); err != nil {
		return err
	}
	if width <= 0 || height <= 0 {
		return fmt.Errorf("%w: %dx%d", ErrBadDimensions, width, height)
	}
	if len(pix) < width*height*4 {
		return fmt.Errorf("gpu: short pixel buffer: got %d, need %d", len(pix), width*height*4)
	}
	if width == s.width && height == s.height {
		copy(s.pix, pix[:width*height*4])
		return nil
	}
	scaleRGBA(pix, width, height, s.pix, s.width, s.height)
	return nil
}

func (s *softwareSurface) Clear(r, g, b, a uint8) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.check(); err != nil {
		return err
	}
	for i := 0; i < len(s.pix); i += 4 {
		s.pix[i] = r
		s.pix[i+1] = g
		s.pix[i+2] = b
		s.pix[i+3] = a
	}
	return nil
}

func (s *softwareSurface) BlitTo(dst Surface) error {
	s.mu.Lock()
	if err := s.check(); err != nil {
		s.mu.Unlock()
		return err
	}
	src := make([]byte, len(s.pix))
	copy(src, s.pix)
	w, h := s.width, s.height
	s.mu.Unlock()

	d, ok := dst.(*softwareSurface)
	if !ok {
		return fmt.Errorf("gpu: blit target is not a software surface")
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	if err := d.check(); err != nil {
		return err
	}
	scaleRGBA(src, w, h, d.pix, d.width, d.height)
	return nil
}

func (s *softwareSurface) ReadPixels() ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.check(); err != nil {
		return nil, err
	}
	out := make([]byte, len(s.pix))
	copy(out, s.pix)
	return out, nil
}

func (s *softwareSurface) Delete() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.deleted {
		return ErrSurfaceDeleted
	}
	s.deleted = true
	s.pix = nil
	s.ctx.mu.Lock()
	s.ctx.liveCount--
	s.ctx.mu.Unlock()
	return nil
}

// scaleRGBA does a nearest-sample scaled copy between RGBA buffers.
func scaleRGBA(src []byte, sw, sh int, dst []byte, dw, dh int) {
	for y := 0; y < dh; y++ {
		sy := y * sh / dh
		srow := sy * sw * 4
		drow := y * dw * 4
		for x := 0; x < dw; x++ {
			sx := x * sw / dw
			si := srow + sx*4
			di := drow + x*4
			dst[di] = src[si]
			dst[di+1] = src[si+1]
			dst[di+2] = src[si+2]
			dst[di+3] = src[si+3]
		}
	}
}
