package guildsync

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"net/http"
	"strings"
	"time"
)

const (
	SignatureAlgorithm = "AWS4-HMAC-SHA256"
	ServiceName        = "s3"
	ScopeTerminator    = "aws4_request"
	// EmptyPayloadHash is the hex SHA-256 digest of zero bytes. Every request
	// this package signs is bodyless, so it is the only payload hash used.
	EmptyPayloadHash = "e3b0c44298fc1c149afbf4c8996fb92427ae41e4649b934ca495991b7852b855"
	// SignedHeaders is the fixed, ordered list of headers covered by a signature.
	SignedHeaders = "host;x-amz-content-sha256;x-amz-date"

	HeaderAuthorization = "Authorization"
	HeaderContentSHA256 = "X-Amz-Content-Sha256"
	HeaderAmzDate       = "X-Amz-Date"

	// MaxClockSkew bounds the difference between x-amz-date and the verifier's clock.
	MaxClockSkew = 15 * time.Minute
)

// Credentials is an access key and secret key pair.
type Credentials struct {
	AccessKey string
	SecretKey string
}

// SignerConfig holds the fixed values a Signer binds into every signature.
type SignerConfig struct {
	Region      string
	Host        string
	Credentials Credentials
}

// SigningContext describes one request to be signed.
type SigningContext struct {
	Method  string // HEAD or GET
	Path    string // escaped request path, e.g. "events.json" or "bucket/events.json"
	AmzDate string // x-amz-date value, see AmzDate
}

// Signature holds every intermediate value of a signing run. The
// intermediates are exported so a 403 from the bucket can be diagnosed by
// comparing them with the provider's error response.
type Signature struct {
	CanonicalRequest string
	StringToSign     string
	Scope            string
	AccessKey        string
	Signature        string
}

// Header assembles the Authorization header value.
func (s Signature) Header() string {
	var b strings.Builder
	b.WriteString(SignatureAlgorithm)
	b.WriteString(" Credential=")
	b.WriteString(s.AccessKey)
	b.WriteByte('/')
	b.WriteString(s.Scope)
	b.WriteString(", SignedHeaders=")
	b.WriteString(SignedHeaders)
	b.WriteString(", Signature=")
	b.WriteString(s.Signature)
	return b.String()
}

// Signer computes SigV4 Authorization headers for bodyless requests against
// a single bucket host. It holds no per-request state and is safe for
// concurrent use.
type Signer struct {
	region string
	host   string
	creds  Credentials
	keys   *signingKeyCache
}

// NewSigner creates a signer bound to a region, host and credential pair.
// All fields are required.
func NewSigner(cfg SignerConfig) (*Signer, error) {
	if cfg.Region == "" {
		return nil, fmt.Errorf("new signer: %w: region cannot be empty", ErrInvalidInput)
	}
	if cfg.Host == "" {
		return nil, fmt.Errorf("new signer: %w: host cannot be empty", ErrInvalidInput)
	}
	if cfg.Credentials.AccessKey == "" || cfg.Credentials.SecretKey == "" {
		return nil, fmt.Errorf("new signer: %w: access key and secret key are required", ErrInvalidInput)
	}

	return &Signer{
		region: cfg.Region,
		host:   cfg.Host,
		creds:  cfg.Credentials,
		keys:   newSigningKeyCache(),
	}, nil
}

// Region returns the region bound into the credential scope.
func (s *Signer) Region() string { return s.region }

// Host returns the host bound into the canonical request.
func (s *Signer) Host() string { return s.host }

// AuthorizationHeader returns the Authorization header for a request.
//
// path is the escaped request path, with or without a leading slash, and amzDate
// must be the exact value sent in the x-amz-date header. The result is
// deterministic for identical inputs.
func (s *Signer) AuthorizationHeader(method, path, amzDate string) string {
	return s.Sign(SigningContext{Method: method, Path: path, AmzDate: amzDate}).Header()
}

// Sign runs the full signing pipeline and returns every intermediate value.
func (s *Signer) Sign(sc SigningContext) Signature {
	date := scopeDate(sc.AmzDate)
	canonical := CanonicalRequest(sc.Method, "/"+strings.TrimPrefix(sc.Path, "/"), s.host, sc.AmzDate)
	scope := CredentialScope(date, s.region)
	stringToSign := StringToSign(sc.AmzDate, scope, canonical)

	key, ok := s.keys.get(s.creds.AccessKey, s.region, date)
	if !ok {
		key = DeriveSigningKey(s.creds.SecretKey, date, s.region)
		s.keys.set(s.creds.AccessKey, s.region, date, key)
	}

	return Signature{
		CanonicalRequest: canonical,
		StringToSign:     stringToSign,
		Scope:            scope,
		AccessKey:        s.creds.AccessKey,
		Signature:        hex.EncodeToString(hmacSHA256(key, []byte(stringToSign))),
	}
}

// SignRequest sets the Host, x-amz-content-sha256, x-amz-date and
// Authorization headers on req. The canonical URI is the escaped request
// path, so a base URL with a path prefix is signed as the server sees it.
func (s *Signer) SignRequest(req *http.Request, amzDate string) {
	req.Host = s.host
	req.Header.Set(HeaderContentSHA256, EmptyPayloadHash)
	req.Header.Set(HeaderAmzDate, amzDate)
	req.Header.Set(HeaderAuthorization, s.AuthorizationHeader(req.Method, req.URL.EscapedPath(), amzDate))
}

// CanonicalRequest builds the canonical request for a bodyless request.
// uri must start with "/". Field order and newlines are fixed:
//
//	METHOD
//	URI
//	(empty query string)
//	host:HOST
//	x-amz-content-sha256:EMPTY_PAYLOAD_HASH
//	x-amz-date:AMZ_DATE
//	(blank line ending the header block)
//	host;x-amz-content-sha256;x-amz-date
//	EMPTY_PAYLOAD_HASH
func CanonicalRequest(method, uri, host, amzDate string) string {
	fields := []string{
		method,
		uri,
		"",
		"host:" + host,
		"x-amz-content-sha256:" + EmptyPayloadHash,
		"x-amz-date:" + amzDate,
		"",
		SignedHeaders,
		EmptyPayloadHash,
	}
	return strings.Join(fields, "\n")
}

// CredentialScope returns date/region/s3/aws4_request.
func CredentialScope(date, region string) string {
	return strings.Join([]string{date, region, ServiceName, ScopeTerminator}, "/")
}

// StringToSign builds the string-to-sign from the hashed canonical request.
func StringToSign(amzDate, scope, canonicalRequest string) string {
	return strings.Join([]string{
		SignatureAlgorithm,
		amzDate,
		scope,
		sha256Hex(canonicalRequest),
	}, "\n")
}

// DeriveSigningKey runs the key chain date -> region -> service -> terminator.
// Each step's raw output is the key of the next HMAC.
func DeriveSigningKey(secretKey, date, region string) []byte {
	kDate := hmacSHA256([]byte("AWS4"+secretKey), []byte(date))
	kRegion := hmacSHA256(kDate, []byte(region))
	kService := hmacSHA256(kRegion, []byte(ServiceName))
	return hmacSHA256(kService, []byte(ScopeTerminator))
}

// SecretStore resolves the secret key of an access key.
type SecretStore interface {
	Lookup(accessKey string) (secretKey string, err error)
}

// SignatureVerifier verifies SigV4 Authorization headers produced by Signer
// (or any client signing the same three headers over an empty payload).
type SignatureVerifier struct {
	Region  string
	Store   SecretStore
	MaxSkew time.Duration
	Now     func() time.Time
}

// NewSignatureVerifier creates a verifier for the given region.
func NewSignatureVerifier(region string, store SecretStore) *SignatureVerifier {
	return &SignatureVerifier{
		Region:  region,
		Store:   store,
		MaxSkew: MaxClockSkew,
		Now:     time.Now,
	}
}

// Verify checks the Authorization header of r.
//
// The following are validated, in order:
//  1. Authorization header is present and well formed
//  2. Algorithm is AWS4-HMAC-SHA256 and SignedHeaders is the fixed list
//  3. x-amz-content-sha256 is the empty payload hash
//  4. x-amz-date parses and is within MaxSkew of the verifier's clock
//  5. Credential scope date, region, service and terminator match
//  6. Access key exists in the store
//  7. Signature matches, compared in constant time
//
// Every failure wraps ErrUnauthorized.
func (v *SignatureVerifier) Verify(r *http.Request) error {
	params, err := parseAuthorization(r.Header.Get(HeaderAuthorization))
	if err != nil {
		return err
	}

	if params.algorithm != SignatureAlgorithm {
		return fmt.Errorf("invalid algorithm: expected %s, got %s: %w", SignatureAlgorithm, params.algorithm, ErrUnauthorized)
	}

	if params.signedHeaders != SignedHeaders {
		return fmt.Errorf("unsupported signed headers %q: %w", params.signedHeaders, ErrUnauthorized)
	}

	if r.Header.Get(HeaderContentSHA256) != EmptyPayloadHash {
		return fmt.Errorf("unsupported payload hash: %w", ErrUnauthorized)
	}

	amzDate := r.Header.Get(HeaderAmzDate)
	requestTime, err := time.Parse(AmzDateFormat, amzDate)
	if err != nil {
		return fmt.Errorf("invalid x-amz-date format: %w", ErrUnauthorized)
	}

	skew := v.now().Sub(requestTime)
	if skew < 0 {
		skew = -skew
	}
	if skew > v.maxSkew() {
		return fmt.Errorf("request time too skewed: %w", ErrUnauthorized)
	}

	if params.date != scopeDate(amzDate) {
		return fmt.Errorf("credential date mismatch: %w", ErrUnauthorized)
	}

	if params.region != v.Region {
		return fmt.Errorf("region mismatch: expected %s, got %s: %w", v.Region, params.region, ErrUnauthorized)
	}

	if params.service != ServiceName {
		return fmt.Errorf("service mismatch: expected %s, got %s: %w", ServiceName, params.service, ErrUnauthorized)
	}

	secretKey, err := v.Store.Lookup(params.accessKey)
	if err != nil {
		return fmt.Errorf("invalid access key: %w", ErrUnauthorized)
	}

	canonical := CanonicalRequest(r.Method, r.URL.EscapedPath(), r.Host, amzDate)
	stringToSign := StringToSign(amzDate, CredentialScope(params.date, params.region), canonical)
	key := DeriveSigningKey(secretKey, params.date, params.region)
	expected := hex.EncodeToString(hmacSHA256(key, []byte(stringToSign)))

	if !hmac.Equal([]byte(expected), []byte(params.signature)) {
		return fmt.Errorf("signature mismatch: %w", ErrUnauthorized)
	}

	return nil
}

func (v *SignatureVerifier) now() time.Time {
	if v.Now == nil {
		return time.Now()
	}
	return v.Now()
}

func (v *SignatureVerifier) maxSkew() time.Duration {
	if v.MaxSkew <= 0 {
		return MaxClockSkew
	}
	return v.MaxSkew
}

type authorizationParams struct {
	algorithm     string
	accessKey     string
	date          string
	region        string
	service       string
	signedHeaders string
	signature     string
}

// parseAuthorization splits
// "ALG Credential=AK/DATE/REGION/SERVICE/aws4_request, SignedHeaders=..., Signature=...".
func parseAuthorization(header string) (*authorizationParams, error) {
	if header == "" {
		return nil, fmt.Errorf("missing authorization header: %w", ErrUnauthorized)
	}

	algorithm, rest, ok := strings.Cut(header, " ")
	if !ok {
		return nil, fmt.Errorf("malformed authorization header: %w", ErrUnauthorized)
	}

	fields := make(map[string]string, 3)
	for _, part := range strings.Split(rest, ",") {
		k, val, found := strings.Cut(strings.TrimSpace(part), "=")
		if !found {
			return nil, fmt.Errorf("malformed authorization header: %w", ErrUnauthorized)
		}
		fields[k] = val
	}

	credential := fields["Credential"]
	signedHeaders := fields["SignedHeaders"]
	signature := fields["Signature"]
	if credential == "" || signedHeaders == "" || signature == "" {
		return nil, fmt.Errorf("missing required authorization fields: %w", ErrUnauthorized)
	}

	credParts := strings.Split(credential, "/")
	if len(credParts) != 5 {
		return nil, fmt.Errorf("invalid credential format: %w", ErrUnauthorized)
	}

	if credParts[4] != ScopeTerminator {
		return nil, fmt.Errorf("invalid credential terminator: expected %s: %w", ScopeTerminator, ErrUnauthorized)
	}

	return &authorizationParams{
		algorithm:     algorithm,
		accessKey:     credParts[0],
		date:          credParts[1],
		region:        credParts[2],
		service:       credParts[3],
		signedHeaders: signedHeaders,
		signature:     signature,
	}, nil
}

func hmacSHA256(key, data []byte) []byte {
	h := hmac.New(sha256.New, key)
	h.Write(data)
	return h.Sum(nil)
}

func sha256Hex(data string) string {
	sum := sha256.Sum256([]byte(data))
	return hex.EncodeToString(sum[:])
}
