package validate

import (
	"fmt"
	"strings"

	"github.com/maltedev/amazon-catalog-parser/internal/models"
)

// Images drops entries without a URL, removes duplicate URLs keeping the first
// occurrence, and leaves exactly one primary image. When the input does not
// mark a single primary the first image is designated.
func Images(imgs []models.Image) ([]models.Image, []models.Warning) {
	out := make([]models.Image, 0, len(imgs))
	// url -> position in out, and the input index it came from
	seen := make(map[string]int, len(imgs))
	firstIndex := make(map[string]int, len(imgs))
	var warnings []models.Warning

	for i, img := range imgs {
		img.URL = strings.TrimSpace(img.URL)
		field := fmt.Sprintf("images[%d]", i)
		if img.URL == "" {
			warnings = append(warnings, models.NewWarning(models.WarnImageMissingURL, field, "image without url dropped"))
			continue
		}
		if pos, dup := seen[img.URL]; dup {
			warnings = append(warnings, models.NewWarning(models.WarnDuplicateImage, field,
				"duplicate of images[%d] removed", firstIndex[img.URL]))
			out[pos].IsPrimary = out[pos].IsPrimary || img.IsPrimary
			if out[pos].AltText == "" {
				out[pos].AltText = img.AltText
			}
			continue
		}
		seen[img.URL] = len(out)
		firstIndex[img.URL] = i
		out = append(out, img)
	}

	if len(out) == 0 {
		return out, warnings
	}

	primaries := 0
	for _, img := range out {
		if img.IsPrimary {
			primaries++
		}
	}

	switch {
	case primaries == 1:
		return out, warnings
	case primaries > 1:
		warnings = append(warnings, models.NewWarning(models.WarnPrimaryImageReassigned, "images",
			"%d images marked primary, first image designated", primaries))
	}
	for i := range out {
		out[i].IsPrimary = i == 0
	}
	return out, warnings
}
