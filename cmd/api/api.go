package main

import (
	"context"
	"errors"
	"expvar"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"moyomzuri/docs" //this is required to generate swagger docs
	"moyomzuri/internal/auth"
	"moyomzuri/internal/mailer"
	"moyomzuri/internal/mpesa"
	"moyomzuri/internal/ratelimiter"
	"moyomzuri/internal/store"

	"github.com/cloudinary/cloudinary-go/v2"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/speps/go-hashids/v2"
	httpSwagger "github.com/swaggo/http-swagger/v2"
	"go.uber.org/zap"
)

type application struct {
	config        config
	store         store.Storage
	logger        *zap.SugaredLogger
	mpesa         mpesa.Gateway
	cld           *cloudinary.Cloudinary
	mailer        mailer.Client
	authenticator auth.Authenticator
	rateLimiter   ratelimiter.Limiter
	refs          *hashids.HashID
}

type config struct {
	addr        string
	env         string
	apiURL      string
	frontendURL string
	db          dbConfig
	mpesa       mpesa.Config
	admin       adminConfig
	auth        authConfig
	mail        mailConfig
	rateLimiter ratelimiter.Config
	hashidSalt  string
}

type dbConfig struct {
	addr        string
	maxConns    int32
	maxIdleTime string
}

type adminConfig struct {
	// bcrypt hash of the operator password; the plaintext never lives in config
	passwordHash string
}

type authConfig struct {
	basic basicConfig
	token tokenConfig
}

type basicConfig struct {
	user string
	pass string
}

type tokenConfig struct {
	secret string
	exp    time.Duration
	iss    string
}

type mailConfig struct {
	fromEmail string
	mailtrap  mailTrapConfig
}

type mailTrapConfig struct {
	apiKey string
}

func (app *application) mount() http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)

	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"https://*", "http://*"},
		AllowedMethods:   []string{"GET", "POST", "PATCH", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		ExposedHeaders:   []string{"Link"},
		AllowCredentials: false,
		MaxAge:           300,
	}))

	// An STK push round trip to Safaricom can take several seconds, so the
	// request timeout stays generous.
	r.Use(middleware.Timeout(60 * time.Second))

	r.Route("/v1", func(r chi.Router) {
		r.With(app.BasicAuthMiddleware()).Get("/health", app.healthCheckHandler)
		r.With(app.BasicAuthMiddleware()).Get("/debug/vars", expvar.Handler().ServeHTTP)

		docsURL := fmt.Sprintf("%s/swagger/doc.json", app.config.addr)
		r.Get("/swagger/*", httpSwagger.Handler(httpSwagger.URL(docsURL)))

		r.Route("/campaigns", func(r chi.Router) {
			r.Get("/", app.listCampaignsHandler)
			r.Get("/{campaignID}", app.getCampaignHandler)
		})

		r.Route("/donations", func(r chi.Router) {
			r.With(app.RateLimiterMiddleware).Post("/", app.createDonationHandler)
			r.Get("/{reference}", app.getDonationStatusHandler)
		})

		// The gateway calls this unauthenticated; see mpesaCallbackHandler.
		r.Route("/mpesa", func(r chi.Router) {
			r.Post("/callback", app.mpesaCallbackHandler)
			r.Get("/callback", app.mpesaCallbackLivenessHandler)
		})

		r.Route("/admin", func(r chi.Router) {
			r.Post("/login", app.adminLoginHandler)

			r.Group(func(r chi.Router) {
				r.Use(app.AdminAuthMiddleware)

				r.Route("/campaigns", func(r chi.Router) {
					r.Post("/", app.createCampaignHandler)
					r.Patch("/{campaignID}", app.updateCampaignHandler)
					r.Post("/{campaignID}/image", app.uploadCampaignImageHandler)
				})

				r.Route("/donations", func(r chi.Router) {
					r.Get("/", app.listDonationsHandler)
					r.Get("/{donationID}/query", app.queryDonationHandler)
					r.Post("/{donationID}/complete", app.completeDonationHandler)
					r.Post("/{donationID}/fail", app.failDonationHandler)
				})
			})
		})
	})

	return r
}

func (app *application) run(mux http.Handler) error {
	// Docs
	docs.SwaggerInfo.Version = version
	docs.SwaggerInfo.Host = app.config.apiURL
	docs.SwaggerInfo.BasePath = "/v1"

	srv := &http.Server{
		Addr:         app.config.addr,
		Handler:      mux,
		WriteTimeout: time.Second * 30,
		ReadTimeout:  time.Second * 10,
		IdleTimeout:  time.Minute,
	}

	// Implementing graceful shutdown
	shutdown := make(chan error)

	go func() {
		quit := make(chan os.Signal, 1)

		signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
		s := <-quit

		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		app.logger.Infow("signal caught", "signal", s.String())

		shutdown <- srv.Shutdown(ctx)
	}()

	app.logger.Infow("server has started", "addr", app.config.addr, "env", app.config.env)

	err := srv.ListenAndServe()
	if !errors.Is(err, http.ErrServerClosed) {
		return err
	}

	err = <-shutdown
	if err != nil {
		return err
	}

	app.logger.Infow("server has stopped", "addr", app.config.addr, "env", app.config.env)

	return nil
}
