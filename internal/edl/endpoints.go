package edl

import (
	"errors"
	"fmt"
	"sort"
)

// ErrUnknownPrefix is returned for a prefix without a credentials endpoint.
var ErrUnknownPrefix = errors.New("unknown credentials prefix")

var endpoints = map[string]string{
	"podaac":   "https://archive.podaac.earthdata.nasa.gov/s3credentials",
	"nsidc":    "https://data.nsidc.earthdatacloud.nasa.gov/s3credentials",
	"lpdaac":   "https://data.lpdaac.earthdatacloud.nasa.gov/s3credentials",
	"gesdisc":  "https://data.gesdisc.earthdata.nasa.gov/s3credentials",
	"ornldaac": "https://data.ornldaac.earthdata.nasa.gov/s3credentials",
}

// Endpoint returns the credentials endpoint registered for prefix.
func Endpoint(prefix string) (string, error) {
	ep, ok := endpoints[prefix]
	if !ok {
		return "", fmt.Errorf("%w %q, want one of %v", ErrUnknownPrefix, prefix, Prefixes())
	}
	return ep, nil
}

// Prefixes lists the registered prefixes.
func Prefixes() []string {
	ps := make([]string, 0, len(endpoints))
	for p := range endpoints {
		ps = append(ps, p)
	}
	sort.Strings(ps)
	return ps
}

// UsernameParam and PasswordParam name the secrets holding the Earthdata
// identity used for prefix.
func UsernameParam(prefix string) string { return prefix + "-sst-edl-username" }

func PasswordParam(prefix string) string { return prefix + "-sst-edl-password" }
