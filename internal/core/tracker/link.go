package tracker

import (
	"net/url"
	"strconv"
	"strings"
)

// ReadRelNext returns the page number of the rel="next" link in an RFC 5988
// Link header, or 0 when there is no next page. Only pages >= 2 count.
//
// Format: <https://host/api/v4/...?page=2&per_page=25>; rel="next", <...>; rel="last"
func ReadRelNext(header string) int {
	if header == "" {
		return 0
	}

	for _, part := range strings.Split(header, ",") {
		segments := strings.SplitN(strings.TrimSpace(part), ";", 2)
		if len(segments) != 2 {
			continue
		}

		urlPart := strings.TrimSpace(segments[0])
		if !strings.Contains(segments[1], `rel="next"`) {
			continue
		}
		if !strings.HasPrefix(urlPart, "<") || !strings.HasSuffix(urlPart, ">") {
			continue
		}

		parsed, err := url.Parse(urlPart[1 : len(urlPart)-1])
		if err != nil {
			return 0
		}
		page, err := strconv.Atoi(parsed.Query().Get("page"))
		if err != nil || page < 2 {
			return 0
		}
		return page
	}

	return 0
}
