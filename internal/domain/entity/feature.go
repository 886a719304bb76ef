package entity

import "math/bits"

// DescriptorBits is the fixed descriptor width in bits.
const DescriptorBits = 256

// Descriptor is a 256-bit binary descriptor of the image patch around a
// keypoint. Compared with Hamming distance only.
type Descriptor [4]uint64

// HammingTo counts the number of mismatched bits between two descriptors.
func (d Descriptor) HammingTo(other Descriptor) int {
	return bits.OnesCount64(d[0]^other[0]) +
		bits.OnesCount64(d[1]^other[1]) +
		bits.OnesCount64(d[2]^other[2]) +
		bits.OnesCount64(d[3]^other[3])
}

// SetBit sets bit i (0 ≤ i < DescriptorBits).
func (d *Descriptor) SetBit(i int) {
	d[i>>6] |= 1 << uint(i&63)
}

// Keypoint is a detected interest point in sub-pixel frame coordinates,
// with the intensity-centroid orientation and detector response at the
// pyramid level it was found on.
type Keypoint struct {
	X        float64
	Y        float64
	Angle    float64 // radians
	Response float64
	Level    int
}

// FeatureSet is the ordered collection of keypoints and their descriptors
// for one frame. Keypoints[i] corresponds to Descriptors[i]; matches refer
// back into this ordering by index.
type FeatureSet struct {
	FrameIndex  int
	Keypoints   []Keypoint
	Descriptors []Descriptor
}

func (fs *FeatureSet) Len() int {
	if fs == nil {
		return 0
	}
	return len(fs.Keypoints)
}

// Match pairs a source feature index with its best destination feature
// index and the Hamming distance between their descriptors.
type Match struct {
	SrcIndex int
	DstIndex int
	Distance int
}
