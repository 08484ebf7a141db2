package submission

import (
	"bytes"
	"fmt"
	"path/filepath"
	"strings"

	exif "github.com/dsoprea/go-exif/v3"
	exifcommon "github.com/dsoprea/go-exif/v3/common"
	jpegstructure "github.com/dsoprea/go-jpeg-image-structure/v2"

	"github.com/OpenCamTrap/camtrap/internal/geometry"
)

// isJPEG reports whether a filename looks like a JPEG; only JPEGs get GPS
// decoration.
func isJPEG(filename string) bool {
	switch strings.ToLower(filepath.Ext(filename)) {
	case ".jpg", ".jpeg":
		return true
	}
	return false
}

// writeGPSExif embeds the coordinates as a GPS IFD in the photo's EXIF
// block and returns the rewritten JPEG bytes. A photo without an existing
// EXIF segment gets a fresh one.
func writeGPSExif(photo []byte, lon, lat float64) ([]byte, error) {
	parser := jpegstructure.NewJpegMediaParser()
	media, err := parser.ParseBytes(photo)
	if err != nil {
		return nil, fmt.Errorf("failed to parse JPEG: %w", err)
	}
	segments := media.(*jpegstructure.SegmentList)

	rootIb, err := segments.ConstructExifBuilder()
	if err != nil {
		rootIb, err = newExifBuilder()
		if err != nil {
			return nil, err
		}
	}

	gpsIb, err := exif.GetOrCreateIbFromRootIb(rootIb, "IFD/GPSInfo")
	if err != nil {
		return nil, fmt.Errorf("failed to open GPS IFD: %w", err)
	}

	lonDMS, latDMS := geometry.LonLatToDMS(lon, lat)
	if err := setGPSCoordinate(gpsIb, "GPSLatitude", latDMS); err != nil {
		return nil, err
	}
	if err := setGPSCoordinate(gpsIb, "GPSLongitude", lonDMS); err != nil {
		return nil, err
	}

	if err := segments.SetExif(rootIb); err != nil {
		return nil, fmt.Errorf("failed to attach EXIF: %w", err)
	}

	var buf bytes.Buffer
	if err := segments.Write(&buf); err != nil {
		return nil, fmt.Errorf("failed to rewrite JPEG: %w", err)
	}
	return buf.Bytes(), nil
}

func newExifBuilder() (*exif.IfdBuilder, error) {
	mapping, err := exifcommon.NewIfdMappingWithStandard()
	if err != nil {
		return nil, fmt.Errorf("failed to build IFD mapping: %w", err)
	}
	tags := exif.NewTagIndex()
	if err := exif.LoadStandardTags(tags); err != nil {
		return nil, fmt.Errorf("failed to load standard tags: %w", err)
	}
	return exif.NewIfdBuilder(mapping, tags,
		exifcommon.IfdStandardIfdIdentity, exifcommon.EncodeDefaultByteOrder), nil
}

func setGPSCoordinate(gpsIb *exif.IfdBuilder, tagName string, dms geometry.DMS) error {
	raw := exif.GpsDegrees{
		Orientation: dms.Ref[0],
		Degrees:     float64(dms.Degrees),
		Minutes:     float64(dms.Minutes),
		Seconds:     dms.Seconds,
	}.Raw()

	if err := gpsIb.SetStandardWithName(tagName+"Ref", dms.Ref); err != nil {
		return fmt.Errorf("failed to set %sRef: %w", tagName, err)
	}
	if err := gpsIb.SetStandardWithName(tagName, raw); err != nil {
		return fmt.Errorf("failed to set %s: %w", tagName, err)
	}
	return nil
}
