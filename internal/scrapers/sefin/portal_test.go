package sefin

import (
	"context"
	"errors"
	"fisconforme-backend/internal/captcha"
	"fisconforme-backend/internal/components/telemetry"
	"net/http"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestOpenerOpen(t *testing.T) {
	f := newFakeSefin(t)
	f.loginDET(`<html><body></body></html>`)
	f.portal.handle("/app/home/", html(`<form action="/app/fisconforme/entrar"><input name="token" value="t"></form>`))
	f.portal.handle("POST /app/fisconforme/entrar", html(pendencyPage))
	f.portal.handle("/app/consultadebitos/extrato.jsp", html(`<p>extrato</p>`))

	opener := NewOpener(PortalOptions{
		Session: SessionOptions{Endpoints: f.endpoints(), RequestsPerSecond: 1000},
	}, captcha.Noop{}, &telemetry.Recorder{})

	identity := testIdentity(t)
	portal, err := opener.Open(context.Background(), identity)
	require.Nil(t, err)

	issues, err := portal.ComplianceIssues(context.Background())
	require.Nil(t, err)
	require.Len(t, issues, 1)

	extract, err := portal.FetchExtract(context.Background(), f.portal.URL+"/app/consultadebitos/extrato.jsp?id=1")
	require.Nil(t, err)
	require.True(t, extract.OK())

	portal.Close()
	require.True(t, identity.Erased())
}

func TestOpenerOpenErasesIdentityOnFailure(t *testing.T) {
	f := newFakeSefin(t)
	f.det.handle("/certificados", status(http.StatusServiceUnavailable))

	opener := NewOpener(PortalOptions{
		Session: SessionOptions{Endpoints: f.endpoints(), RequestsPerSecond: 1000},
	}, nil, &telemetry.Recorder{})

	identity := testIdentity(t)
	portal, err := opener.Open(context.Background(), identity)
	require.Nil(t, portal)
	var authErr *AuthenticationError
	require.True(t, errors.As(err, &authErr))
	require.True(t, identity.Erased())
}
