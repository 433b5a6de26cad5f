package uvot

import (
	"io"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"github.com/klauspost/compress/gzip"

	"github.com/tphakala/uvotredux/internal/errors"
	"github.com/tphakala/uvotredux/internal/logger"
)

// Raw sky image name patterns inside <obs>/uvot/image
const (
	imagePattern           = "*_sk.img"
	compressedImagePattern = "*_sk.img.gz"
)

// UnpackResult lists what Unpack did in an image directory
type UnpackResult struct {
	Images       []string // uncompressed images present afterwards, sorted
	Decompressed []string // images created by this call
	Corrupt      []string // archives that could not be decompressed
}

// Unpack decompresses every *_sk.img.gz of imageDir that has no
// uncompressed sibling. Archives are never removed and existing images are
// never rewritten. A corrupt archive is logged and skipped.
func Unpack(imageDir string) (*UnpackResult, error) {
	log := GetLogger().With(logger.String("dir", imageDir))

	compressed, err := filepath.Glob(filepath.Join(imageDir, compressedImagePattern))
	if err != nil {
		return nil, err
	}
	log.Info("Found compressed images", logger.Int("count", len(compressed)))

	result := &UnpackResult{}
	for _, archive := range compressed {
		target := strings.TrimSuffix(archive, ".gz")
		if _, err := os.Stat(target); err == nil {
			continue
		} else if !os.IsNotExist(err) {
			return nil, imageDirError(target, err)
		}

		log.Info("Uncompressing image", logger.String("image", filepath.Base(archive)))
		if err := gunzipFile(archive, target); err != nil {
			if errors.IsCategory(err, errors.CategoryFileParsing) {
				log.Error("Failed to uncompress image, skipping",
					logger.String("image", filepath.Base(archive)),
					logger.Error(err))
				result.Corrupt = append(result.Corrupt, archive)
				continue
			}
			return nil, err
		}
		result.Decompressed = append(result.Decompressed, target)
	}

	images, err := filepath.Glob(filepath.Join(imageDir, imagePattern))
	if err != nil {
		return nil, err
	}
	images = slices.DeleteFunc(images, func(p string) bool {
		info, err := os.Stat(p)
		return err != nil || !info.Mode().IsRegular()
	})
	slices.Sort(images)
	result.Images = images
	return result, nil
}

// gunzipFile writes the decompressed content of src to dst via a temp file
// in the same directory, so dst only appears once complete.
func gunzipFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return imageDirError(src, err)
	}
	defer in.Close()

	zr, err := gzip.NewReader(in)
	if err != nil {
		return corruptArchiveError(src, err)
	}
	defer zr.Close()

	tmp, err := os.CreateTemp(filepath.Dir(dst), "."+filepath.Base(dst)+".*")
	if err != nil {
		return imageDirError(dst, err)
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	if _, err := io.Copy(tmp, zr); err != nil {
		tmp.Close()
		if errors.Is(err, gzip.ErrChecksum) || errors.Is(err, gzip.ErrHeader) || errors.Is(err, io.ErrUnexpectedEOF) {
			return corruptArchiveError(src, err)
		}
		return imageDirError(dst, err)
	}
	if err := tmp.Close(); err != nil {
		return imageDirError(dst, err)
	}
	if err := os.Chmod(tmpName, 0o644); err != nil {
		return imageDirError(dst, err)
	}
	if err := os.Rename(tmpName, dst); err != nil {
		return imageDirError(dst, err)
	}
	return nil
}

func corruptArchiveError(path string, err error) error {
	return errors.New(err).
		Component("uvot").
		Category(errors.CategoryFileParsing).
		Context("operation", "decompress").
		FileContext(path).
		Build()
}

func imageDirError(path string, err error) error {
	return errors.New(err).
		Component("uvot").
		Category(errors.CategoryFileIO).
		FileContext(path).
		Build()
}
