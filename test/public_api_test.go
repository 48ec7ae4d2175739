package test

import (
	"github.com/MrEthical07/deviceauth"
	"github.com/MrEthical07/deviceauth/httpapi"
	"github.com/MrEthical07/deviceauth/middleware"
	otelexport "github.com/MrEthical07/deviceauth/metrics/export/otel"
	promexport "github.com/MrEthical07/deviceauth/metrics/export/prometheus"
	"github.com/MrEthical07/deviceauth/password"
	"github.com/MrEthical07/deviceauth/session"
	"github.com/MrEthical07/deviceauth/session/badgerstore"
	"github.com/MrEthical07/deviceauth/userstore"
)

// Public surface compatibility guards.
var (
	_ deviceauth.SessionStore = (*session.Store)(nil)
	_ deviceauth.SessionStore = (*badgerstore.Store)(nil)
	_ deviceauth.Pinger       = (*session.Store)(nil)

	_ deviceauth.UserProvider        = (*userstore.Memory)(nil)
	_ deviceauth.PasswordHashUpdater = (*userstore.Memory)(nil)
	_ deviceauth.UserProvider        = (*userstore.Postgres)(nil)
	_ deviceauth.PasswordHashUpdater = (*userstore.Postgres)(nil)

	_ deviceauth.PasswordHasher = (*password.Auto)(nil)

	_ deviceauth.AuditSink = (*deviceauth.SlogSink)(nil)
	_ deviceauth.AuditSink = (*deviceauth.JSONWriterSink)(nil)
	_ deviceauth.AuditSink = (*deviceauth.ChannelSink)(nil)
	_ deviceauth.AuditSink = deviceauth.NoOpSink{}

	_ httpapi.Manager            = (*deviceauth.Engine)(nil)
	_ middleware.AccessValidator = (*deviceauth.Engine)(nil)
	_ promexport.MetricsSource   = (*deviceauth.Engine)(nil)
	_ otelexport.MetricsSource   = (*deviceauth.Engine)(nil)
	_ deviceauth.Clock           = deviceauth.ClockFunc(nil)
)
