package main

import (
	"expvar"
	"fmt"
	"log"
	"os"
	"runtime"
	"strconv"
	"time"

	"moyomzuri/internal/db"
	"moyomzuri/internal/mailer"
	"moyomzuri/internal/mpesa"
	"moyomzuri/internal/ratelimiter"
	"moyomzuri/internal/store"

	"github.com/cloudinary/cloudinary-go/v2"
	"github.com/joho/godotenv"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"moyomzuri/internal/auth"
)

// LoadRateLimiterConfig retrieves rate limiter settings from environment variables
func LoadRateLimiterConfig() ratelimiter.Config {
	defaultRequests := 20
	defaultEnabled := true

	requestsPerTimeFrame := defaultRequests
	if val, exists := os.LookupEnv("RATELIMITER_REQUESTS_COUNT"); exists {
		if parsedVal, err := strconv.Atoi(val); err == nil {
			requestsPerTimeFrame = parsedVal
		} else {
			fmt.Println("Invalid RATELIMITER_REQUESTS_COUNT, defaulting to", defaultRequests)
		}
	}

	enabled := defaultEnabled
	if val, exists := os.LookupEnv("RATE_LIMITER_ENABLED"); exists {
		if parsedVal, err := strconv.ParseBool(val); err == nil {
			enabled = parsedVal
		} else {
			fmt.Println("Invalid RATE_LIMITER_ENABLED, defaulting to", defaultEnabled)
		}
	}

	return ratelimiter.Config{
		RequestsPerTimeFrame: requestsPerTimeFrame,
		TimeFrame:            time.Minute,
		Enabled:              enabled,
	}
}

// NewLogger creates a new zap logger with color.
func NewLogger() (*zap.SugaredLogger, error) {
	encoderCfg := zap.NewProductionEncoderConfig()
	encoderCfg.EncodeTime = zapcore.ISO8601TimeEncoder
	encoderCfg.EncodeLevel = zapcore.CapitalColorLevelEncoder

	consoleEncoder := zapcore.NewConsoleEncoder(encoderCfg)
	level := zapcore.InfoLevel
	core := zapcore.NewCore(consoleEncoder, zapcore.NewMultiWriteSyncer(zapcore.AddSync(os.Stdout)), level)

	logger := zap.New(core)

	return logger.Sugar(), nil
}

var version = "1.0.0"

//	@title			Moyo Mzuri API
//	@description	Donation platform backed by M-Pesa STK push payments.

//	@BasePath					/v1
//	@securityDefinitions.apikey	ApiKeyAuth
//	@in							header
//	@name						Authorization
//	@description

func main() {
	err := godotenv.Load()
	if err != nil {
		log.Fatalf("Error loading .env file: %v", err)
	}

	maxConnsStr := os.Getenv("DB_MAX_CONNS")
	maxConns, err := strconv.Atoi(maxConnsStr)
	if err != nil {
		log.Fatalf("Invalid value for DB_MAX_CONNS: %v", err)
	}

	cfg := config{
		addr:        os.Getenv("ADDR"),
		env:         os.Getenv("ENV"),
		apiURL:      os.Getenv("EXTERNAL_URL"),
		frontendURL: os.Getenv("FRONTEND_URL"),
		db: dbConfig{
			addr:        os.Getenv("DB_ADDR"),
			maxConns:    int32(maxConns),
			maxIdleTime: os.Getenv("DB_MAX_IDLE_TIME"),
		},
		mpesa: mpesa.Config{
			Environment:    os.Getenv("MPESA_ENVIRONMENT"),
			ConsumerKey:    os.Getenv("MPESA_CONSUMER_KEY"),
			ConsumerSecret: os.Getenv("MPESA_CONSUMER_SECRET"),
			ShortCode:      os.Getenv("MPESA_SHORT_CODE"),
			Passkey:        os.Getenv("MPESA_PASSKEY"),
			CallbackURL:    os.Getenv("MPESA_CALLBACK_URL"),
		},
		admin: adminConfig{
			passwordHash: os.Getenv("ADMIN_PASSWORD_HASH"),
		},
		auth: authConfig{
			basic: basicConfig{
				user: os.Getenv("AUTH_BASIC_USER"),
				pass: os.Getenv("AUTH_BASIC_PASS"),
			},
			token: tokenConfig{
				secret: os.Getenv("AUTH_TOKEN_SECRET"),
				exp:    time.Hour * 12, // one operator shift
				iss:    "moyomzuri",
			},
		},
		mail: mailConfig{
			fromEmail: os.Getenv("MAILTRAP_FROM_EMAIL"),
			mailtrap: mailTrapConfig{
				apiKey: os.Getenv("MAILTRAP_API_KEY"),
			},
		},
		rateLimiter: LoadRateLimiterConfig(),
		hashidSalt:  os.Getenv("DONATION_HASHID_SALT"),
	}

	// Logger
	logger, err := NewLogger()
	if err != nil {
		fmt.Println("Error creating logger:", err)
		return
	}
	defer logger.Sync()

	// Database
	pool, err := db.New(
		cfg.db.addr,
		cfg.db.maxConns,
		cfg.db.maxIdleTime,
	)
	if err != nil {
		logger.Fatal(err)
	}
	defer pool.Close()
	logger.Info("database connection pool established")

	// Storage
	store := store.NewStorage(pool)

	// M-Pesa gateway client
	gateway := mpesa.NewClient(cfg.mpesa)

	// Cloudinary for campaign cover images
	cloudinaryURL := os.Getenv("CLOUDINARY_URL")
	cld, err := cloudinary.NewFromURL(cloudinaryURL)
	if err != nil {
		logger.Fatal(err)
	}

	// Mailer for donation receipts
	mailtrap, err := mailer.NewMailTrapClient(cfg.mail.mailtrap.apiKey, cfg.mail.fromEmail)
	if err != nil {
		logger.Fatal(err)
	}

	// Rate limiter
	rateLimiter := ratelimiter.NewFixedWindowLimiter(
		cfg.rateLimiter.RequestsPerTimeFrame,
		cfg.rateLimiter.TimeFrame,
	)

	// Authenticator
	jwtAuthenticator := auth.NewJWTAuthenticator(
		cfg.auth.token.secret,
		cfg.auth.token.iss,
		cfg.auth.token.iss,
	)

	// Donor-facing donation references
	refs, err := newDonationRefs(cfg.hashidSalt)
	if err != nil {
		logger.Fatal(err)
	}

	app := &application{
		config:        cfg,
		store:         store,
		logger:        logger,
		mpesa:         gateway,
		cld:           cld,
		mailer:        mailtrap,
		authenticator: jwtAuthenticator,
		rateLimiter:   rateLimiter,
		refs:          refs,
	}

	// Metrics collected at /v1/debug/vars
	expvar.NewString("version").Set(version)
	expvar.Publish("database", expvar.Func(func() any {
		s := pool.Stat()
		return map[string]any{
			"total_conns":    s.TotalConns(),
			"idle_conns":     s.IdleConns(),
			"acquired_conns": s.AcquiredConns(),
		}
	}))
	expvar.Publish("goroutines", expvar.Func(func() any {
		return runtime.NumGoroutine()
	}))

	mux := app.mount()

	logger.Fatal(app.run(mux))
}
