package mirror

import (
	"bytes"
	"fmt"

	"github.com/disintegration/imaging"
)

// FlipH reflects the image horizontally and re-encodes it as PNG. Pure and
// deterministic; applied to the processed bytes only when the upload asked
// for mirroring.
func FlipH(data []byte) ([]byte, error) {
	src, err := imaging.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("decode image: %w", err)
	}

	flipped := imaging.FlipH(src)

	out := &bytes.Buffer{}
	if err = imaging.Encode(out, flipped, imaging.PNG); err != nil {
		return nil, fmt.Errorf("encode flipped image: %w", err)
	}

	return out.Bytes(), nil
}
