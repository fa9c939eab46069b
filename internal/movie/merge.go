package movie

// EnrichWith copies fields from source into target where the target has no
// value yet: empty strings, a zero year, and a nil rating count as absent.
// A field the target already carries is never overwritten. Child images and
// ratings the target lacks (keyed by URL and source) are appended.
//
// Each field is enumerated explicitly so "absent" is defined per field
// instead of being inferred from runtime type inspection.
func EnrichWith(target *Movie, source Movie) {
	if target.Title == "" && source.Title != "" {
		target.Title = source.Title
	}
	if target.Year == 0 && source.Year != 0 {
		target.Year = source.Year
	}
	if target.Genre == "" && source.Genre != "" {
		target.Genre = source.Genre
	}
	if target.Description == "" && source.Description != "" {
		target.Description = source.Description
	}
	if target.Rating == nil && source.Rating != nil {
		value := *source.Rating
		target.Rating = &value
	}
	if target.ImdbID == "" && source.ImdbID != "" {
		target.ImdbID = source.ImdbID
	}
	if target.TmdbID == "" && source.TmdbID != "" {
		target.TmdbID = source.TmdbID
	}

	known := make(map[string]struct{}, len(target.Images))
	for _, image := range target.Images {
		known[image.URL] = struct{}{}
	}
	for _, image := range source.Images {
		if image.URL == "" {
			continue
		}
		if _, ok := known[image.URL]; ok {
			continue
		}
		known[image.URL] = struct{}{}
		target.Images = append(target.Images, Image{URL: image.URL, Kind: image.Kind})
	}

	rated := make(map[string]struct{}, len(target.Ratings))
	for _, rating := range target.Ratings {
		rated[rating.Source] = struct{}{}
	}
	for _, rating := range source.Ratings {
		if rating.Source == "" {
			continue
		}
		if _, ok := rated[rating.Source]; ok {
			continue
		}
		rated[rating.Source] = struct{}{}
		target.Ratings = append(target.Ratings, Rating{Source: rating.Source, Value: rating.Value})
	}
}
