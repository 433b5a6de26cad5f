package archive

import (
	"context"
	"fmt"
	"io"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"strings"

	"golang.org/x/net/html"
	"golang.org/x/sync/errgroup"

	"github.com/tphakala/uvotredux/internal/errors"
	"github.com/tphakala/uvotredux/internal/logger"
)

// Subtrees of an observation fetched from the data tree
var fetchSubdirs = []string{"uvot/image/", "xrt/event/", "auxil/"}

// FetchResult counts the files of one observation
type FetchResult struct {
	ObsID string
	Files []string // local paths written
	Bytes int64
}

// Fetch downloads the UVOT image, XRT event and auxiliary files of obs into
// dir/<obsid>/, replacing files that already exist. A subtree missing from
// the archive is logged and skipped.
func (c *Client) Fetch(ctx context.Context, obs Observation, dir string) (*FetchResult, error) {
	log := GetLogger().WithContext(ctx).With(logger.String("obs_id", obs.ObsID))
	base := fmt.Sprintf("%s/%s/%s/", c.config.DataURL, obs.Month(), obs.ObsID)
	result := &FetchResult{ObsID: obs.ObsID}

	type job struct{ url, dest string }
	var jobs []job
	for _, sub := range fetchSubdirs {
		files, err := c.listDirectory(ctx, base+sub)
		if err != nil {
			if errors.IsNotFound(err) {
				log.Warn("Archive directory not found", logger.String("subdir", sub))
				continue
			}
			return result, err
		}
		localDir := filepath.Join(dir, obs.ObsID, filepath.FromSlash(sub))
		for _, name := range files {
			jobs = append(jobs, job{url: base + sub + name, dest: filepath.Join(localDir, name)})
		}
	}
	log.Info("Downloading Swift data for observation", logger.Int("files", len(jobs)))

	sizes := make([]int64, len(jobs))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(c.config.Concurrency)
	for i, j := range jobs {
		g.Go(func() error {
			n, err := c.downloadFile(gctx, j.url, j.dest)
			sizes[i] = n
			return err
		})
	}
	if err := g.Wait(); err != nil {
		return result, err
	}

	for i, j := range jobs {
		result.Files = append(result.Files, j.dest)
		result.Bytes += sizes[i]
	}
	return result, nil
}

// listDirectory returns the file names linked from an HTML directory listing.
// Parent links, sort links and subdirectories are ignored.
func (c *Client) listDirectory(ctx context.Context, dirURL string) ([]string, error) {
	resp, err := c.get(ctx, dirURL)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	doc, err := html.Parse(resp.Body)
	if err != nil {
		return nil, errors.New(fmt.Errorf("failed to parse directory listing: %w", err)).
			Component("archive").
			Category(errors.CategoryFileParsing).
			Context("url", dirURL).
			Build()
	}

	var names []string
	seen := make(map[string]bool)
	for _, href := range findLinks(doc) {
		name, ok := listingEntry(href)
		if ok && !seen[name] {
			seen[name] = true
			names = append(names, name)
		}
	}
	return names, nil
}

// findLinks returns the href of every anchor in the document
func findLinks(doc *html.Node) []string {
	var hrefs []string
	var traverse func(*html.Node)
	traverse = func(node *html.Node) {
		if node.Type == html.ElementNode && node.Data == "a" {
			for _, attr := range node.Attr {
				if attr.Key == "href" {
					hrefs = append(hrefs, attr.Val)
				}
			}
		}
		for child := node.FirstChild; child != nil; child = child.NextSibling {
			traverse(child)
		}
	}
	traverse(doc)
	return hrefs
}

// listingEntry accepts relative links to files in the listed directory
func listingEntry(href string) (string, bool) {
	u, err := url.Parse(href)
	if err != nil || u.IsAbs() || u.RawQuery != "" || u.Fragment != "" {
		return "", false
	}
	p := u.Path
	if p == "" || strings.HasPrefix(p, "/") || strings.HasPrefix(p, ".") || strings.HasSuffix(p, "/") {
		return "", false
	}
	name := path.Base(p)
	if name != p {
		return "", false
	}
	return name, true
}

// downloadFile streams url into dest through a temp file in the same directory
func (c *Client) downloadFile(ctx context.Context, fileURL, dest string) (int64, error) {
	if err := os.MkdirAll(filepath.Dir(dest), 0o755); err != nil {
		return 0, fileError(dest, err)
	}

	resp, err := c.get(ctx, fileURL)
	if err != nil {
		return 0, err
	}
	defer resp.Body.Close()

	tmp, err := os.CreateTemp(filepath.Dir(dest), "."+filepath.Base(dest)+".*")
	if err != nil {
		return 0, fileError(dest, err)
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	n, err := io.Copy(tmp, resp.Body)
	if err != nil {
		tmp.Close()
		return n, errors.New(fmt.Errorf("download interrupted: %w", err)).
			Component("archive").
			Category(errors.CategoryNetwork).
			Context("url", fileURL).
			Build()
	}
	if err := tmp.Close(); err != nil {
		return n, fileError(dest, err)
	}
	if err := os.Chmod(tmpName, 0o644); err != nil {
		return n, fileError(dest, err)
	}
	if err := os.Rename(tmpName, dest); err != nil {
		return n, fileError(dest, err)
	}
	GetLogger().Debug("Downloaded file", logger.String("file", filepath.Base(dest)), logger.Int64("bytes", n))
	return n, nil
}

func fileError(path string, err error) error {
	return errors.New(err).
		Component("archive").
		Category(errors.CategoryFileIO).
		FileContext(path).
		Build()
}
