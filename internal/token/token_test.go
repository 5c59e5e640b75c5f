package token

import (
	"strings"
	"testing"
	"time"

	"github.com/and161185/arcadia/internal/errs"
	"github.com/gofrs/uuid/v5"
	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/require"
)

var secret = []byte("0123456789abcdef0123456789abcdef")

func TestIssueVerify_RoundTrip(t *testing.T) {
	t.Parallel()
	now := time.Date(2026, 5, 1, 10, 0, 0, 0, time.UTC)
	s := NewService(secret, 0, func() time.Time { return now })
	id := uuid.Must(uuid.NewV4())

	tok, issued, err := s.Issue(id, "alice")
	require.NoError(t, err)
	require.Equal(t, now.Add(24*time.Hour), issued.ExpiresAt)
	require.NotEmpty(t, issued.TokenID)

	got, err := s.Verify(tok)
	require.NoError(t, err)
	require.Equal(t, id, got.AccountID)
	require.Equal(t, "alice", got.Username)
	require.Equal(t, issued.TokenID, got.TokenID)
	require.True(t, got.ExpiresAt.Equal(issued.ExpiresAt))
}

func TestIssue_UniqueTokenIDs(t *testing.T) {
	t.Parallel()
	s := NewService(secret, time.Hour, nil)
	id := uuid.Must(uuid.NewV4())

	_, c1, err := s.Issue(id, "bob")
	require.NoError(t, err)
	_, c2, err := s.Issue(id, "bob")
	require.NoError(t, err)
	require.NotEqual(t, c1.TokenID, c2.TokenID)
}

func TestVerify_Expired(t *testing.T) {
	t.Parallel()
	now := time.Date(2026, 5, 1, 10, 0, 0, 0, time.UTC)
	clock := now
	s := NewService(secret, 24*time.Hour, func() time.Time { return clock })

	tok, _, err := s.Issue(uuid.Must(uuid.NewV4()), "carol")
	require.NoError(t, err)

	clock = now.Add(24*time.Hour - time.Second)
	_, err = s.Verify(tok)
	require.NoError(t, err)

	clock = now.Add(24*time.Hour + time.Second)
	_, err = s.Verify(tok)
	require.ErrorIs(t, err, errs.ErrExpiredToken)
	require.ErrorIs(t, err, errs.ErrUnauthorized)
}

func TestVerify_Malformed(t *testing.T) {
	t.Parallel()
	s := NewService(secret, time.Hour, nil)
	other := NewService([]byte("another-secret-another-secret-xx"), time.Hour, nil)

	tok, _, err := other.Issue(uuid.Must(uuid.NewV4()), "dave")
	require.NoError(t, err)
	_, err = s.Verify(tok)
	require.ErrorIs(t, err, errs.ErrMalformedToken, "wrong key")

	_, err = s.Verify("not.a.jwt")
	require.ErrorIs(t, err, errs.ErrMalformedToken)

	_, err = s.Verify("")
	require.ErrorIs(t, err, errs.ErrMalformedToken)

	// payload of one token under the signature of another
	a, _, err := s.Issue(uuid.Must(uuid.NewV4()), "erin")
	require.NoError(t, err)
	b, _, err := s.Issue(uuid.Must(uuid.NewV4()), "frank")
	require.NoError(t, err)
	pa, pb := strings.Split(a, "."), strings.Split(b, ".")
	_, err = s.Verify(pa[0] + "." + pb[1] + "." + pa[2])
	require.ErrorIs(t, err, errs.ErrMalformedToken)
}

func TestVerify_RejectsOtherAlgorithms(t *testing.T) {
	t.Parallel()
	s := NewService(secret, time.Hour, nil)
	claims := jwt.RegisteredClaims{
		Subject:   uuid.Must(uuid.NewV4()).String(),
		IssuedAt:  jwt.NewNumericDate(time.Now()),
		ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
	}

	hs512, err := jwt.NewWithClaims(jwt.SigningMethodHS512, claims).SignedString(secret)
	require.NoError(t, err)
	_, err = s.Verify(hs512)
	require.ErrorIs(t, err, errs.ErrMalformedToken)

	none, err := jwt.NewWithClaims(jwt.SigningMethodNone, claims).SignedString(jwt.UnsafeAllowNoneSignatureType)
	require.NoError(t, err)
	_, err = s.Verify(none)
	require.ErrorIs(t, err, errs.ErrMalformedToken)
}

func TestVerify_BadSubject(t *testing.T) {
	t.Parallel()
	s := NewService(secret, time.Hour, nil)
	claims := jwt.RegisteredClaims{
		Subject:   "not-a-uuid",
		ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
	}
	tok, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(secret)
	require.NoError(t, err)
	_, err = s.Verify(tok)
	require.ErrorIs(t, err, errs.ErrMalformedToken)
}

func TestIssue_EmptySecret(t *testing.T) {
	t.Parallel()
	s := NewService(nil, time.Hour, nil)
	_, _, err := s.Issue(uuid.Must(uuid.NewV4()), "x")
	require.Error(t, err)
}
