// Package aggregate implements the result aggregation pipeline: extraction,
// per-type normalization, deduplication, confidence scoring, and
// relationship clustering over raw entity mentions.
package aggregate

import (
	"net"
	"regexp"
	"strings"

	"github.com/nyaruka/phonenumbers"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"github.com/sells-group/intel-engine/internal/model"
)

// Normalized is the outcome of canonicalizing one raw value. Invalid inputs
// are reported, never raised; the caller drops them.
type Normalized struct {
	CanonicalValue string
	Valid          bool
	Reason         string
	Metadata       map[string]any
}

func invalid(reason string) Normalized {
	return Normalized{Valid: false, Reason: reason}
}

// webmailDomains are high-volume consumer mail domains whose local parts get
// alias folding (dots and +suffix stripped).
var webmailDomains = map[string]bool{
	"gmail.com":      true,
	"googlemail.com": true,
	"yahoo.com":      true,
	"hotmail.com":    true,
	"outlook.com":    true,
	"live.com":       true,
	"msn.com":        true,
	"aol.com":        true,
	"icloud.com":     true,
	"protonmail.com": true,
	"proton.me":      true,
}

// disposableDomains are throwaway mail providers.
var disposableDomains = map[string]bool{
	"mailinator.com":    true,
	"guerrillamail.com": true,
	"10minutemail.com":  true,
	"tempmail.com":      true,
	"throwaway.email":   true,
	"yopmail.com":       true,
	"sharklasers.com":   true,
}

var emailShapeRe = regexp.MustCompile(`^[^@\s]+@[^@\s]+\.[a-z]{2,}$`)

// NormalizeEmail lowercases, validates the local@domain.tld shape, and folds
// webmail aliases so a.b+tag@gmail.com and ab@gmail.com collapse together.
func NormalizeEmail(raw string) Normalized {
	email := strings.ToLower(strings.TrimSpace(raw))
	if email == "" {
		return invalid("empty")
	}
	if !emailShapeRe.MatchString(email) {
		return invalid("not a valid email shape")
	}

	local, domain, _ := strings.Cut(email, "@")
	if webmailDomains[domain] {
		if i := strings.Index(local, "+"); i >= 0 {
			local = local[:i]
		}
		local = strings.ReplaceAll(local, ".", "")
		if local == "" {
			return invalid("empty local part after alias folding")
		}
	}

	return Normalized{
		CanonicalValue: local + "@" + domain,
		Valid:          true,
		Metadata: map[string]any{
			"local":         local,
			"domain":        domain,
			"is_business":   !webmailDomains[domain] && !disposableDomains[domain],
			"is_disposable": disposableDomains[domain],
		},
	}
}

// NormalizePhone parses against the default region and canonicalizes to E.164.
func NormalizePhone(raw, defaultRegion string) Normalized {
	if strings.TrimSpace(raw) == "" {
		return invalid("empty")
	}
	if defaultRegion == "" {
		defaultRegion = "US"
	}

	num, err := phonenumbers.Parse(raw, defaultRegion)
	if err != nil {
		return invalid("unparseable phone number")
	}
	if !phonenumbers.IsValidNumber(num) {
		return invalid("invalid phone number")
	}

	return Normalized{
		CanonicalValue: phonenumbers.Format(num, phonenumbers.E164),
		Valid:          true,
		Metadata: map[string]any{
			"region":      phonenumbers.GetRegionCodeForNumber(num),
			"number_type": phoneTypeName(phonenumbers.GetNumberType(num)),
		},
	}
}

func phoneTypeName(t phonenumbers.PhoneNumberType) string {
	switch t {
	case phonenumbers.FIXED_LINE:
		return "fixed_line"
	case phonenumbers.MOBILE:
		return "mobile"
	case phonenumbers.FIXED_LINE_OR_MOBILE:
		return "fixed_line_or_mobile"
	case phonenumbers.TOLL_FREE:
		return "toll_free"
	case phonenumbers.PREMIUM_RATE:
		return "premium_rate"
	case phonenumbers.VOIP:
		return "voip"
	default:
		return "unknown"
	}
}

// namePrefixes and nameSuffixes are stripped into metadata rather than kept
// in the canonical value.
var namePrefixes = map[string]bool{
	"mr": true, "mrs": true, "ms": true, "dr": true, "prof": true, "rev": true,
}

var nameSuffixes = map[string]bool{
	"jr": true, "sr": true, "ii": true, "iii": true, "iv": true,
	"phd": true, "md": true, "esq": true,
}

// organizationKeywords flag names that look like companies, not people.
var organizationKeywords = map[string]bool{
	"inc": true, "llc": true, "corp": true, "corporation": true,
	"ltd": true, "limited": true, "company": true, "co": true,
	"group": true, "holdings": true, "partners": true, "gmbh": true,
	"agency": true, "associates": true,
}

var multiSpaceRe = regexp.MustCompile(`\s{2,}`)

// titleCase constructs its Caser per call: a cases.Caser carries internal
// state and must not be shared across the per-type normalizer goroutines.
func titleCase(s string) string {
	return cases.Title(language.English).String(s)
}

// NormalizeName trims, collapses whitespace, title-cases, and strips a small
// fixed set of prefixes/suffixes into metadata. Organization-like names are
// flagged via a keyword list.
func NormalizeName(raw string) Normalized {
	name := strings.TrimSpace(raw)
	name = multiSpaceRe.ReplaceAllString(name, " ")
	if name == "" {
		return invalid("empty")
	}

	tokens := strings.Fields(titleCase(name))

	meta := map[string]any{}
	isOrg := false
	for _, tok := range tokens {
		if organizationKeywords[strings.ToLower(strings.Trim(tok, ".,"))] {
			isOrg = true
			break
		}
	}

	if !isOrg {
		if len(tokens) > 1 {
			if namePrefixes[strings.ToLower(strings.Trim(tokens[0], "."))] {
				meta["prefix"] = tokens[0]
				tokens = tokens[1:]
			}
		}
		if len(tokens) > 1 {
			last := strings.ToLower(strings.Trim(tokens[len(tokens)-1], ".,"))
			if nameSuffixes[last] {
				meta["suffix"] = tokens[len(tokens)-1]
				tokens = tokens[:len(tokens)-1]
			}
		}
	}

	if len(tokens) == 0 {
		return invalid("no core tokens after stripping")
	}

	meta["is_organization"] = isOrg

	return Normalized{
		CanonicalValue: strings.Join(tokens, " "),
		Valid:          true,
		Metadata:       meta,
	}
}

// streetAbbreviations expands common street designators.
var streetAbbreviations = map[string]string{
	"st":   "street",
	"ave":  "avenue",
	"rd":   "road",
	"blvd": "boulevard",
	"dr":   "drive",
	"ln":   "lane",
	"ct":   "court",
	"pl":   "place",
	"sq":   "square",
	"hwy":  "highway",
	"pkwy": "parkway",
	"ste":  "suite",
	"apt":  "apartment",
	"fl":   "floor",
	"n":    "north",
	"s":    "south",
	"e":    "east",
	"w":    "west",
}

var (
	zipRe   = regexp.MustCompile(`\b(\d{5})(?:-\d{4})?\b`)
	stateRe = regexp.MustCompile(`(?:^|[\s,])([A-Z]{2})(?:[\s,]|$)`)
)

// NormalizeAddress expands street abbreviations, extracts the postal code
// and 2-letter state token, and canonicalizes the expanded first line.
func NormalizeAddress(raw string) Normalized {
	addr := strings.TrimSpace(raw)
	addr = multiSpaceRe.ReplaceAllString(addr, " ")
	if addr == "" {
		return invalid("empty")
	}

	meta := map[string]any{}
	if m := zipRe.FindStringSubmatch(addr); m != nil {
		meta["zip"] = m[1]
	}
	if m := stateRe.FindStringSubmatch(addr); m != nil {
		meta["state"] = m[1]
	}

	firstLine := addr
	if i := strings.Index(addr, ","); i >= 0 {
		firstLine = addr[:i]
	}

	words := strings.Fields(strings.ToLower(firstLine))
	for i, w := range words {
		trimmed := strings.Trim(w, ".")
		if full, ok := streetAbbreviations[trimmed]; ok {
			words[i] = full
		}
	}

	return Normalized{
		CanonicalValue: titleCase(strings.Join(words, " ")),
		Valid:          true,
		Metadata:       meta,
	}
}

var (
	domainRe = regexp.MustCompile(`^([a-z0-9]([a-z0-9-]*[a-z0-9])?\.)+[a-z]{2,}$`)
	hostPort = regexp.MustCompile(`:\d+$`)
)

// NormalizeURL lowercases, defaults the scheme to https, validates the host
// as a domain, IP, or localhost, and extracts the host.
func NormalizeURL(raw string) Normalized {
	u := strings.ToLower(strings.TrimSpace(raw))
	if u == "" {
		return invalid("empty")
	}
	if !strings.Contains(u, "://") {
		u = "https://" + u
	}

	rest := u[strings.Index(u, "://")+3:]
	host := rest
	if i := strings.IndexAny(host, "/?#"); i >= 0 {
		host = host[:i]
	}
	host = hostPort.ReplaceAllString(host, "")

	if host == "" {
		return invalid("no host")
	}
	if host != "localhost" && !domainRe.MatchString(host) && net.ParseIP(host) == nil {
		return invalid("host is not a valid domain, IP, or localhost")
	}

	return Normalized{
		CanonicalValue: u,
		Valid:          true,
		Metadata: map[string]any{
			"host": host,
		},
	}
}

// normalizeGeneric is the fallback for unknown entity types.
func normalizeGeneric(raw string) Normalized {
	v := strings.ToLower(strings.TrimSpace(raw))
	if v == "" {
		return invalid("empty")
	}
	return Normalized{CanonicalValue: v, Valid: true, Metadata: map[string]any{}}
}

// Normalize dispatches to the type-specific normalizer.
func Normalize(t model.EntityType, raw, defaultRegion string) Normalized {
	switch t {
	case model.EntityTypeEmail:
		return NormalizeEmail(raw)
	case model.EntityTypePhone:
		return NormalizePhone(raw, defaultRegion)
	case model.EntityTypeName:
		return NormalizeName(raw)
	case model.EntityTypeAddress:
		return NormalizeAddress(raw)
	case model.EntityTypeURL:
		return NormalizeURL(raw)
	default:
		return normalizeGeneric(raw)
	}
}
