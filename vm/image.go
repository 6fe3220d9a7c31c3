package vm

import (
	"fmt"
	"os"

	"github.com/fxamacker/cbor/v2"
)

// ImageVersion is bumped whenever the image layout changes.
const ImageVersion = 1

// Image is a serialized session: program, labels, stack and the point the
// next run resumes from.
type Image struct {
	Version   int            `cbor:"1,keyasint"`
	Program   *Program       `cbor:"2,keyasint"`
	Labels    map[string]int `cbor:"3,keyasint"`
	Stack     []Value        `cbor:"4,keyasint,omitempty"`
	Resume    int            `cbor:"5,keyasint"`
	NextBlock int            `cbor:"6,keyasint,omitempty"`
}

var imageEncMode cbor.EncMode

func init() {
	em, err := cbor.CanonicalEncOptions().EncMode()
	if err != nil {
		panic(fmt.Sprintf("vm: failed to create CBOR enc mode: %v", err))
	}
	imageEncMode = em
}

// Snapshot captures the session as an Image. The image shares nothing
// with the live session.
func (s *State) Snapshot() *Image {
	return &Image{
		Version:   ImageVersion,
		Program:   s.prog.Clone(),
		Labels:    s.labels.Snapshot(),
		Stack:     s.Stack(),
		Resume:    s.resume,
		NextBlock: s.ids.Next,
	}
}

// Restore replaces the session's program, labels and stack with the
// image's. Host, includer and lexer are kept.
func (s *State) Restore(img *Image) error {
	if img.Version != ImageVersion {
		return fmt.Errorf("vm: image version %d, want %d", img.Version, ImageVersion)
	}
	prog := img.Program
	if prog == nil {
		prog = NewProgram()
	}
	if len(prog.Refs) != len(prog.Code) {
		prog.Refs = alignRefs(prog.Code, prog.Refs)
	}
	if img.Resume < 0 || img.Resume > prog.Len() {
		return fmt.Errorf("vm: image resume point %d outside program of %d", img.Resume, prog.Len())
	}
	s.prog = prog.Clone()
	s.labels = LabelsFrom(img.Labels)
	s.stack = append([]Value(nil), img.Stack...)
	s.resume = img.Resume
	s.ids = BlockIDs{Next: img.NextBlock}
	s.cache = CacheStats{}
	return nil
}

// MarshalImage serializes the session to CBOR bytes.
func (s *State) MarshalImage() ([]byte, error) {
	return imageEncMode.Marshal(s.Snapshot())
}

// UnmarshalImage restores the session from CBOR bytes.
func (s *State) UnmarshalImage(data []byte) error {
	var img Image
	if err := cbor.Unmarshal(data, &img); err != nil {
		return fmt.Errorf("vm: unmarshal image: %w", err)
	}
	return s.Restore(&img)
}

// SaveImage writes the session image to path.
func (s *State) SaveImage(path string) error {
	data, err := s.MarshalImage()
	if err != nil {
		return err
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("vm: write image: %w", err)
	}
	log.Infof("saved image %s (%d instructions)", path, s.prog.Len())
	return nil
}

// LoadImage restores the session from the image at path.
func (s *State) LoadImage(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("vm: read image: %w", err)
	}
	return s.UnmarshalImage(data)
}
