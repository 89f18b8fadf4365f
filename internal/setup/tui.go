// Package setup implements the interactive configuration wizard.
package setup

import (
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strconv"
	"time"

	"github.com/charmbracelet/huh"
	"github.com/charmbracelet/lipgloss"
	"github.com/joho/godotenv"
	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"

	"github.com/vadiminshakov/ratehub/config"
	"github.com/vadiminshakov/ratehub/internal/domain"
)

// DefaultConfigFile is where the wizard writes its result.
const DefaultConfigFile = "config.gen.yaml"

var (
	subtle    = lipgloss.AdaptiveColor{Light: "#D9DCCF", Dark: "#383838"}
	highlight = lipgloss.AdaptiveColor{Light: "#874BFD", Dark: "#7D56F4"}
	special   = lipgloss.AdaptiveColor{Light: "#43BF6D", Dark: "#73F59F"}

	headerStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("205")).
			Background(highlight).
			Padding(1, 2).
			Bold(true).
			MarginBottom(1)

	stepStyle = lipgloss.NewStyle().
			Foreground(special).
			Bold(true).
			MarginTop(1).
			MarginBottom(0)
)

var knownSources = []string{
	config.SourceCoinGecko,
	config.SourceExchangeRate,
	config.SourceBinance,
	config.SourceBybit,
	config.SourceHyperliquid,
}

// Answers holds the wizard input before it becomes a config file.
type Answers struct {
	DataDir         string
	BaseCurrency    string
	RatesTTL        string
	UpdateInterval  string
	ListenAddr      string
	Sources         []string
	ExchangeRateKey string
}

// DefaultAnswers pre-fills the wizard.
func DefaultAnswers() Answers {
	return Answers{
		DataDir:        config.DefaultDataDir,
		BaseCurrency:   config.DefaultBaseCurrency,
		RatesTTL:       config.DefaultRatesTTL.String(),
		UpdateInterval: config.DefaultUpdateInterval.String(),
		ListenAddr:     config.DefaultListenAddr,
		Sources:        []string{config.SourceCoinGecko, config.SourceExchangeRate},
	}
}

// ConfigTmp converts the answers into the YAML layout and validates the
// resulting configuration.
func (a Answers) ConfigTmp() (config.ConfigTmp, error) {
	if len(a.Sources) == 0 {
		return config.ConfigTmp{}, errors.New("at least one rate source must be enabled")
	}

	enabled := make(map[string]bool, len(a.Sources))
	for _, s := range a.Sources {
		enabled[s] = true
	}

	order := make([]string, 0, len(a.Sources))
	for _, s := range knownSources {
		if enabled[s] {
			order = append(order, s)
		}
	}
	if len(order) != len(enabled) {
		return config.ConfigTmp{}, errors.Errorf("unknown source in %v", a.Sources)
	}

	tmp := config.ConfigTmp{
		DataDir:        a.DataDir,
		DefaultBase:    a.BaseCurrency,
		RatesTTL:       a.RatesTTL,
		UpdateInterval: a.UpdateInterval,
		ListenAddr:     a.ListenAddr,
		Sources: config.SourcesTmp{
			Order:        order,
			CoinGecko:    &config.CoinGeckoTmp{Enabled: flag(enabled[config.SourceCoinGecko])},
			ExchangeRate: &config.ExchangeRateTmp{Enabled: flag(enabled[config.SourceExchangeRate])},
			Binance:      &config.ExchangeTmp{Enabled: flag(enabled[config.SourceBinance])},
			Bybit:        &config.ExchangeTmp{Enabled: flag(enabled[config.SourceBybit])},
			Hyperliquid:  &config.HyperliquidTmp{Enabled: flag(enabled[config.SourceHyperliquid])},
		},
	}

	cfg, err := tmp.ToConfig()
	if err != nil {
		return config.ConfigTmp{}, err
	}
	if err := cfg.Validate(); err != nil {
		return config.ConfigTmp{}, err
	}

	return tmp, nil
}

// WriteConfig stores tmp as YAML at path. A non-empty API key goes to the
// .env file next to it instead of the YAML.
func WriteConfig(path string, tmp config.ConfigTmp, apiKey string) error {
	data, err := yaml.Marshal(tmp)
	if err != nil {
		return errors.Wrap(err, "failed to generate yaml")
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return errors.Wrap(err, "failed to save config file")
	}

	if apiKey == "" {
		return nil
	}

	envPath := filepath.Join(filepath.Dir(path), ".env")
	env, err := godotenv.Read(envPath)
	if err != nil {
		env = map[string]string{}
	}
	env[config.EnvExchangeRateAPIKey] = apiKey

	return errors.Wrap(godotenv.Write(env, envPath), "failed to save .env")
}

// RunTUI launches the terminal configuration wizard and writes the result
// to path.
func RunTUI(path string) error {
	if path == "" {
		path = DefaultConfigFile
	}

	a := DefaultAnswers()
	ttlSeconds := strconv.Itoa(int(config.DefaultRatesTTL / time.Second))
	var confirm bool

	// step 1: storage
	header()
	fmt.Println(lipgloss.NewStyle().Foreground(subtle).Render("Local exchange-rate cache setup.\n"))
	fmt.Println(stepStyle.Render("STEP 1: STORAGE"))
	err := huh.NewForm(
		huh.NewGroup(
			huh.NewInput().
				Title("Data directory").
				Description("Holds exchange_rates.json, rates.json and the cycle log").
				Value(&a.DataDir).
				Validate(func(s string) error {
					if s == "" {
						return fmt.Errorf("data directory cannot be empty")
					}
					return nil
				}),
			huh.NewInput().
				Title("Base currency").
				Description("Quote currency of the cached pairs (e.g. USD)").
				Value(&a.BaseCurrency).
				Validate(func(s string) error {
					_, err := domain.GetCurrency(s)
					return err
				}),
		),
	).Run()
	if err != nil {
		return err
	}

	// step 2: freshness
	header()
	fmt.Println(stepStyle.Render("STEP 2: FRESHNESS"))
	err = huh.NewForm(
		huh.NewGroup(
			huh.NewInput().
				Title("Rates TTL (seconds)").
				Description("Older cached rates are refreshed on read").
				Value(&ttlSeconds).
				Validate(validatePositiveInt),
			huh.NewInput().
				Title("Update interval").
				Description("Duration string for `serve` (e.g. 1m, 5m)").
				Value(&a.UpdateInterval).
				Validate(func(s string) error {
					d, err := time.ParseDuration(s)
					if err != nil {
						return err
					}
					if d <= 0 {
						return fmt.Errorf("must be positive")
					}
					return nil
				}),
		),
	).Run()
	if err != nil {
		return err
	}

	// step 3: sources
	header()
	fmt.Println(stepStyle.Render("STEP 3: SOURCES"))
	err = huh.NewForm(
		huh.NewGroup(
			huh.NewMultiSelect[string]().
				Title("Rate sources").
				Options(
					huh.NewOption("CoinGecko (crypto)", config.SourceCoinGecko),
					huh.NewOption("ExchangeRate-API (fiat, needs key)", config.SourceExchangeRate),
					huh.NewOption("Binance", config.SourceBinance),
					huh.NewOption("Bybit", config.SourceBybit),
					huh.NewOption("Hyperliquid", config.SourceHyperliquid),
				).
				Value(&a.Sources).
				Validate(func(s []string) error {
					if len(s) == 0 {
						return fmt.Errorf("select at least one source")
					}
					return nil
				}),
		),
	).Run()
	if err != nil {
		return err
	}

	if slices.Contains(a.Sources, config.SourceExchangeRate) && os.Getenv(config.EnvExchangeRateAPIKey) == "" {
		header()
		fmt.Println(stepStyle.Render("STEP 4: CREDENTIALS"))
		err = huh.NewForm(
			huh.NewGroup(
				huh.NewInput().
					Title("ExchangeRate-API key").
					Description("Saved to .env, leave empty to set " + config.EnvExchangeRateAPIKey + " later").
					Value(&a.ExchangeRateKey).
					EchoMode(huh.EchoModePassword),
			),
		).Run()
		if err != nil {
			return err
		}
	}

	secs, _ := strconv.Atoi(ttlSeconds)
	a.RatesTTL = (time.Duration(secs) * time.Second).String()

	tmp, err := a.ConfigTmp()
	if err != nil {
		return err
	}

	// confirmation
	header()
	fmt.Println(stepStyle.Render("FINAL CONFIRMATION"))
	summary := fmt.Sprintf(
		"Data dir: %s\nBase: %s\nTTL: %s\nInterval: %s\nSources: %v\n",
		a.DataDir, a.BaseCurrency, a.RatesTTL, a.UpdateInterval, tmp.Sources.Order,
	)
	fmt.Println(lipgloss.NewStyle().Border(lipgloss.NormalBorder()).Padding(1).Render(summary))

	err = huh.NewForm(
		huh.NewGroup(
			huh.NewConfirm().
				Title("Save Configuration?").
				Affirmative("Yes, save").
				Negative("No, exit").
				Value(&confirm),
		),
	).Run()
	if err != nil {
		return err
	}
	if !confirm {
		return errors.New("setup cancelled by user")
	}

	if err := WriteConfig(path, tmp, a.ExchangeRateKey); err != nil {
		return err
	}

	fmt.Println(lipgloss.NewStyle().Foreground(special).Render(
		fmt.Sprintf("\n✓ Configuration saved to %s\nRun `ratehub -config %s update` to fill the cache.", path, path)))
	return nil
}

func header() {
	fmt.Print("\033[H\033[2J")
	fmt.Println(headerStyle.Render("RATEHUB CONFIG WIZARD"))
}

func validatePositiveInt(s string) error {
	n, err := strconv.Atoi(s)
	if err != nil {
		return fmt.Errorf("must be a whole number")
	}
	if n <= 0 {
		return fmt.Errorf("must be positive")
	}
	return nil
}

func flag(v bool) *bool {
	return &v
}
