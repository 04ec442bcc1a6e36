package caldav

import (
	"encoding/xml"
)

// entry is one member of the enumerated collection.
type entry struct {
	Href string
	ETag string
}

// multistatus mirrors the DAV:multistatus document shape. Namespace prefixes
// vary between servers; encoding/xml matches on the namespace URI, so the
// literal prefix does not matter.
type multistatus struct {
	XMLName   xml.Name `xml:"DAV: multistatus"`
	Responses []struct {
		Href     string `xml:"DAV: href"`
		Propstat []struct {
			Status string `xml:"DAV: status"`
			Prop   struct {
				ETag string `xml:"DAV: getetag"`
			} `xml:"DAV: prop"`
		} `xml:"DAV: propstat"`
	} `xml:"DAV: response"`
}

// parseMultistatus extracts hrefs and etags from a PROPFIND response body.
// Entries without a usable etag are still returned; the etag is advisory.
func parseMultistatus(body []byte) ([]entry, error) {
	var ms multistatus
	if err := xml.Unmarshal(body, &ms); err != nil {
		return nil, err
	}

	out := make([]entry, 0, len(ms.Responses))
	for _, resp := range ms.Responses {
		e := entry{Href: resp.Href}
		for _, ps := range resp.Propstat {
			if ps.Prop.ETag != "" {
				e.ETag = ps.Prop.ETag
				break
			}
		}
		out = append(out, e)
	}
	return out, nil
}
