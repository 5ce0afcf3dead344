package config

import (
	"path/filepath"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
)

// Config enthält alle Konfigurationsparameter aus Umgebungsvariablen.
type Config struct {
	HTTPPort     string `envconfig:"HTTP_PORT" default:"4242"`
	APISecretKey string `envconfig:"API_SECRET_KEY"`

	PubChemBaseURL        string `envconfig:"PUBCHEM_BASE_URL" default:"https://pubchem.ncbi.nlm.nih.gov/rest/pug"`
	PubChemPugViewBaseURL string `envconfig:"PUBCHEM_PUG_VIEW_BASE_URL" default:"https://pubchem.ncbi.nlm.nih.gov/rest/pug_view"`
	PubChemWebBaseURL     string `envconfig:"PUBCHEM_WEB_BASE_URL" default:"https://pubchem.ncbi.nlm.nih.gov"`
	CTGovBaseURL          string `envconfig:"CTGOV_BASE_URL" default:"https://clinicaltrials.gov/api/v2"`
	UserAgent             string `envconfig:"USER_AGENT" default:"trial-scout/0.1"`

	// HNIDs der PubChem-Klassifikationsknoten, aus denen CIDs gezogen werden.
	// Default: "has clinical trial data" (hid=72).
	HNIDs string `envconfig:"HNIDS" default:"1856916"`

	OutDir     string `envconfig:"OUT_DIR" default:"data/ctgov"`
	HistoryDir string `envconfig:"HISTORY_DIR" default:"data/ctgov/history"`

	LimitCIDs int `envconfig:"LIMIT_CIDS" default:"0"`
	LimitNCTs int `envconfig:"LIMIT_NCTS" default:"0"`

	UseCTGovFallback bool `envconfig:"USE_CTGOV_FALLBACK" default:"false"`
	Resume           bool `envconfig:"RESUME" default:"true"`
	FailFast         bool `envconfig:"FAIL_FAST" default:"false"`
	ProgressEvery    int  `envconfig:"PROGRESS_EVERY" default:"50"`

	// Fuzzy-Linker
	LinkerMaxSynonyms     int `envconfig:"LINKER_MAX_SYNONYMS" default:"20"`
	LinkerPageSize        int `envconfig:"LINKER_PAGE_SIZE" default:"100"`
	LinkerMaxPagesPerTerm int `envconfig:"LINKER_MAX_PAGES_PER_TERM" default:"2"`
	LinkerMinScore        int `envconfig:"LINKER_MIN_SCORE" default:"2"`
	LinkerMaxLinksPerCID  int `envconfig:"LINKER_MAX_LINKS_PER_CID" default:"50"`

	// SDQ-Trials-Export
	SDQCollections     string `envconfig:"SDQ_COLLECTIONS" default:"clinicaltrials,clinicaltrials_eu,clinicaltrials_jp"`
	SDQLimitPerCIDCall int    `envconfig:"SDQ_LIMIT_PER_CID_CALL" default:"200"`
	FetchImages        bool   `envconfig:"FETCH_IMAGES" default:"false"`
	ImageSize          string `envconfig:"IMAGE_SIZE" default:"400x400"`

	// History-Tracking
	SnapshotOnChange bool `envconfig:"SNAPSHOT_ON_CHANGE" default:"false"`
	RetentionDays    int  `envconfig:"RETENTION_DAYS" default:"365"`

	CronSchedule string `envconfig:"CRON_SCHEDULE" default:"0 0 * * *"`

	// Optionaler S3-Upload der aktuellen Datensätze (Strato HiDrive o.ä.).
	S3Enabled bool   `envconfig:"S3_ENABLED" default:"false"`
	S3Key     string `envconfig:"S3_KEY"`
	S3Secret  string `envconfig:"S3_SECRET"`
	S3URL     string `envconfig:"S3_URL"`
	S3Region  string `envconfig:"S3_REGION"`
	S3Bucket  string `envconfig:"S3_BUCKET"`
}

// StateFile gibt den Pfad der Collection-State-Datei zurück.
func (c *Config) StateFile() string {
	return filepath.Join(c.OutDir, "collection_state.json")
}

// SDQCollectionList zerlegt die konfigurierte Collection-Liste.
func (c *Config) SDQCollectionList() []string {
	var out []string
	for _, s := range strings.Split(c.SDQCollections, ",") {
		if t := strings.TrimSpace(s); t != "" {
			out = append(out, t)
		}
	}
	return out
}

// HNIDList zerlegt die konfigurierte HNID-Liste.
func (c *Config) HNIDList() []int {
	var out []int
	for _, s := range strings.Split(c.HNIDs, ",") {
		t := strings.TrimSpace(s)
		if t == "" {
			continue
		}
		if n, err := strconv.Atoi(t); err == nil {
			out = append(out, n)
		}
	}
	return out
}

// Load lädt die Konfiguration aus den Umgebungsvariablen.
func Load() (*Config, error) {
	_ = godotenv.Load()
	var c Config
	err := envconfig.Process("", &c)
	return &c, err
}
