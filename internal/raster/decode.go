package raster

import (
	"bytes"
	"image"
	_ "image/jpeg"
	_ "image/png"
	"os"

	_ "golang.org/x/image/tiff"

	"github.com/joseph-ayodele/payslip-extractor/internal/common"
)

func decodeFile(path string) (image.Image, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, common.RasterError("open image", err)
	}
	defer f.Close()

	img, _, err := image.Decode(f)
	if err != nil {
		return nil, common.RasterError("decode "+path, err)
	}
	return img, nil
}

func decodeBytes(b []byte) (image.Image, error) {
	img, _, err := image.Decode(bytes.NewReader(b))
	if err != nil {
		return nil, common.RasterError("decode page image", err)
	}
	return img, nil
}
