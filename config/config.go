package config

import (
	"fmt"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
)

// Config holds every runtime setting, populated from environment variables.
type Config struct {
	DBHost     string `envconfig:"DB_HOST" required:"true"`
	DBPort     int    `envconfig:"DB_PORT" default:"5432"`
	DBUser     string `envconfig:"DB_USER" required:"true"`
	DBPassword string `envconfig:"DB_PASSWORD" required:"true"`
	DBName     string `envconfig:"DB_NAME" required:"true"`

	HTTPPort     string `envconfig:"HTTP_PORT" default:"4242"`
	APISecretKey string `envconfig:"API_SECRET_KEY"`

	// Hatena AtomPub access. The API key is the blog's AtomPub key, not the
	// account password.
	HatenaID     string `envconfig:"HATENA_ID" required:"true"`
	BlogDomain   string `envconfig:"BLOG_DOMAIN" required:"true"`
	HatenaAPIKey string `envconfig:"HATENA_API_KEY" required:"true"`
	MaxPages     int    `envconfig:"HATENA_MAX_PAGES" default:"10"`

	CronSchedule string `envconfig:"CRON_SCHEDULE" default:"0 6 * * *"`

	// Repost planning knobs. The defaults match how the blog has been run
	// historically: at most 5 reposts per plan, 90 days between reposts of
	// the same article, planned 4 weeks out.
	MaxArticles    int `envconfig:"REPOST_MAX_ARTICLES" default:"5"`
	MinDaysBetween int `envconfig:"REPOST_MIN_DAYS_BETWEEN" default:"90"`
	WeeksAhead     int `envconfig:"REPOST_WEEKS_AHEAD" default:"4"`

	// Categories containing any of these keywords get a "verify technical
	// accuracy" preparation note.
	TechCategoryKeywords []string `envconfig:"TECH_CATEGORY_KEYWORDS" default:"プログラミング"`

	HistoryFile string `envconfig:"REPOST_HISTORY_FILE" default:"repost_history.json"`
	OutputDir   string `envconfig:"OUTPUT_DIR" default:"./output"`

	// Affiliate tags. An empty tag disables rewriting for that service.
	RakutenAffiliateTag string `envconfig:"RAKUTEN_AFFILIATE_TAG"`
	AmazonAssociateTag  string `envconfig:"AMAZON_ASSOCIATE_TAG"`

	// OpenAI-compatible API for content enrichment and image generation.
	// Optional: without a key both steps are skipped.
	OpenAIAPIKey  string `envconfig:"OPENAI_API_KEY"`
	OpenAIBaseURL string `envconfig:"OPENAI_BASE_URL" default:"https://api.openai.com/v1"`
	OpenAIModel   string `envconfig:"OPENAI_MODEL" default:"gpt-4o-mini"`
	ImageModel    string `envconfig:"OPENAI_IMAGE_MODEL" default:"dall-e-3"`

	// Optional S3 target for plan exports. cmd/backup has its own config.
	S3Key    string `envconfig:"EXPORT_S3_KEY"`
	S3Secret string `envconfig:"EXPORT_S3_SECRET"`
	S3URL    string `envconfig:"EXPORT_S3_URL"`
	S3Region string `envconfig:"EXPORT_S3_REGION"`
	S3Bucket string `envconfig:"EXPORT_S3_BUCKET"`
}

// DSN returns the Data Source Name for the PostgreSQL connection.
func (c *Config) DSN() string {
	return fmt.Sprintf("host=%s user=%s password=%s dbname=%s port=%d sslmode=disable",
		c.DBHost, c.DBUser, c.DBPassword, c.DBName, c.DBPort)
}

// S3Configured reports whether plan exports should be mirrored to S3.
func (c *Config) S3Configured() bool {
	return c.S3Key != "" && c.S3Secret != "" && c.S3URL != "" && c.S3Bucket != ""
}

// Load loads the configuration from environment variables.
func Load() (*Config, error) {
	_ = godotenv.Load()
	var c Config
	err := envconfig.Process("", &c)
	return &c, err
}
