package config

import (
	"os"
	"strings"

	"github.com/spf13/viper"
)

// Config holds application configuration (env + Viper).
type Config struct {
	Env           string
	Port          string
	SessionSecret string
	DatabaseURL   string
	RedisURL      string

	SupabaseURL       string // storage sign URLs and public URLs (proof-of-payment, documents)
	SupabaseSecretKey string // must be service_role key, not anon key

	StripeSecretKey     string
	StripeWebhookSecret string

	DePayPublicKey  string // DePay's public key (PEM) for verifying incoming x-signature
	DePayPrivateKey string // this service's private key (PEM) for signing responses
	DePayReceiver   string // wallet address receiving crypto payments

	BankAccountName   string // manual rail payment instructions
	BankAccountNumber string
	BankName          string

	FrontendURLEndsWith string
	CheckoutSuccessURL  string
	CheckoutCancelURL   string
	DevPassword         string
	AllowCrossSiteDev   bool
	HealthAdminKey      string
	SendinblueAPIKey    string // SENDINBLUE_API_KEY for transactional emails (Brevo)
	MailFrom            string // MAIL_FROM sender email
}

// Load loads config from env and optional .env file.
func Load() (*Config, error) {
	viper.SetConfigFile(".env")
	_ = viper.ReadInConfig()

	viper.AutomaticEnv()
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	port := viper.GetString("PORT")
	if port == "" {
		port = "8080"
	}
	env := viper.GetString("APP_ENV")
	if env == "" {
		env = "development"
	}

	dbURL := viper.GetString("DATABASE_URL_DEV")
	if env == "production" {
		dbURL = viper.GetString("DATABASE_URL_PROD")
	} else if env == "test" {
		dbURL = viper.GetString("DATABASE_URL_TEST")
	}
	if dbURL == "" {
		dbURL = os.Getenv("DATABASE_URL")
	}

	return &Config{
		Env:                 env,
		Port:                port,
		SessionSecret:       viper.GetString("SESSION_SECRET"),
		DatabaseURL:         dbURL,
		RedisURL:            viper.GetString("REDIS_URL"),
		SupabaseURL:         viper.GetString("SUPABASE_URL"),
		SupabaseSecretKey:   viper.GetString("SUPABASE_SECRET_KEY"),
		StripeSecretKey:     viper.GetString("STRIPE_SECRET_KEY"),
		StripeWebhookSecret: viper.GetString("STRIPE_WEBHOOK_SECRET"),
		DePayPublicKey:      viper.GetString("DEPAY_PUBLIC_KEY"),
		DePayPrivateKey:     viper.GetString("DEPAY_PRIVATE_KEY"),
		DePayReceiver:       viper.GetString("DEPAY_RECEIVER_ADDRESS"),
		BankAccountName:     viper.GetString("BANK_ACCOUNT_NAME"),
		BankAccountNumber:   viper.GetString("BANK_ACCOUNT_NUMBER"),
		BankName:            viper.GetString("BANK_NAME"),
		FrontendURLEndsWith: viper.GetString("FRONTEND_URL_ENDS_WITH"),
		CheckoutSuccessURL:  urlOrDefault(viper.GetString("CHECKOUT_SUCCESS_URL"), "https://stayvest.app/purchase/success"),
		CheckoutCancelURL:   urlOrDefault(viper.GetString("CHECKOUT_CANCEL_URL"), "https://stayvest.app/purchase/cancelled"),
		DevPassword:         viper.GetString("DEV_PASSWORD"),
		AllowCrossSiteDev:   strings.EqualFold(viper.GetString("ALLOW_CROSS_SITE_DEV"), "true"),
		HealthAdminKey:      viper.GetString("HEALTH_ADMIN_KEY"),
		SendinblueAPIKey:    viper.GetString("SENDINBLUE_API_KEY"),
		MailFrom:            viper.GetString("MAIL_FROM"),
	}, nil
}

func urlOrDefault(s, def string) string {
	s = strings.TrimSpace(s)
	if s == "" {
		return def
	}
	return s
}
