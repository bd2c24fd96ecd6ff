package synb0

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"

	"github.com/blang/semver"
	"github.com/containerd/containerd/log"
)

// imageNameRe matches the file names the containers directory is expected to hold,
// e.g. synb0-disco-v3.1.0.sif or synb0-disco-v3.1.sif.
var imageNameRe = regexp.MustCompile(`^synb0-disco-v(\d+(?:\.\d+){0,2})\.sif$`)

// Image is one versioned Synb0-DISCO Singularity image on disk.
type Image struct {
	Path    string
	Version semver.Version
}

// ListImages scans the containers directory for versioned .sif images and returns
// them sorted by ascending version. Files that don't follow the naming scheme are
// skipped with a debug log, they are usually work-in-progress builds.
func ListImages(ctx context.Context, containersDir string) ([]Image, error) {
	entries, err := os.ReadDir(containersDir)
	if err != nil {
		log.G(ctx).Error("Unable to read containers directory " + containersDir)
		return nil, err
	}

	var images []Image
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		m := imageNameRe.FindStringSubmatch(entry.Name())
		if m == nil {
			log.G(ctx).Debug("Skipping non-image file " + entry.Name())
			continue
		}
		version, err := parseImageVersion(m[1])
		if err != nil {
			log.G(ctx).Debug("Skipping image with unparsable version " + entry.Name())
			continue
		}
		images = append(images, Image{
			Path:    filepath.Join(containersDir, entry.Name()),
			Version: version,
		})
	}

	if len(images) == 0 {
		return nil, fmt.Errorf("no synb0-disco images found in %s", containersDir)
	}

	sort.Slice(images, func(i, j int) bool {
		return images[i].Version.LT(images[j].Version)
	})

	return images, nil
}

// ResolveImage returns the image matching the requested version, or the highest
// version if the request is empty or "latest".
func ResolveImage(ctx context.Context, containersDir string, version string) (Image, error) {
	images, err := ListImages(ctx, containersDir)
	if err != nil {
		return Image{}, err
	}

	if version == "" || version == "latest" {
		latest := images[len(images)-1]
		log.G(ctx).Debug("Resolved latest synb0-disco image " + latest.Path)
		return latest, nil
	}

	wanted, err := parseImageVersion(strings.TrimPrefix(version, "v"))
	if err != nil {
		return Image{}, fmt.Errorf("invalid container version %q: %w", version, err)
	}
	for _, image := range images {
		if image.Version.EQ(wanted) {
			return image, nil
		}
	}
	return Image{}, fmt.Errorf("no synb0-disco image with version %s in %s", version, containersDir)
}

// parseImageVersion tolerates the short forms used on older images (v3, v3.1).
func parseImageVersion(s string) (semver.Version, error) {
	for strings.Count(s, ".") < 2 {
		s += ".0"
	}
	return semver.Parse(s)
}
