package region

import "errors"

var (
	errEmptyRegionUUID = errors.New("region: config: region uuid is required")
	errNoPresentation  = errors.New("region: config: presentation engine is required")
)
