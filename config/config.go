/*
Copyright 2024 Settld Authors.

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

	http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

package config

import (
	"encoding/json"
	"errors"
	"log"
	"os"
	"strings"
	"sync/atomic"

	"github.com/kelseyhightower/envconfig"

	"github.com/sirupsen/logrus"
)

const (
	DEFAULT_PORT = "5002"
)

var ConfigStore atomic.Value

type ServerConfig struct {
	SSL       bool   `json:"ssl" envconfig:"SETTLD_SERVER_SSL"`
	Secure    bool   `json:"secure" envconfig:"SETTLD_SERVER_SECURE"`
	SecretKey string `json:"secret_key" envconfig:"SETTLD_SERVER_SECRET_KEY"`
	Domain    string `json:"domain" envconfig:"SETTLD_SERVER_SSL_DOMAIN"`
	Email     string `json:"ssl_email" envconfig:"SETTLD_SERVER_SSL_EMAIL"`
	Port      string `json:"port" envconfig:"SETTLD_SERVER_PORT"`
}

type DataSourceConfig struct {
	Dns string `json:"dns" envconfig:"SETTLD_DATA_SOURCE_DNS"`
}

// ReconciliationConfig carries the run-parameter defaults. Request
// parameters override these per run; the thresholds stay configurable so a
// scoring calibration never needs a code change.
type ReconciliationConfig struct {
	AmountTolerance  int64   `json:"amount_tolerance" envconfig:"SETTLD_RECON_AMOUNT_TOLERANCE"`
	DateWindowDays   int     `json:"date_window_days" envconfig:"SETTLD_RECON_DATE_WINDOW_DAYS"`
	MatchThreshold   float64 `json:"match_threshold" envconfig:"SETTLD_RECON_MATCH_THRESHOLD"`
	PartialThreshold float64 `json:"partial_threshold" envconfig:"SETTLD_RECON_PARTIAL_THRESHOLD"`
	DefaultCurrency  string  `json:"default_currency" envconfig:"SETTLD_RECON_DEFAULT_CURRENCY"`
}

type SlackWebhook struct {
	WebhookUrl string `json:"webhook_url"`
}

type Notification struct {
	Slack   SlackWebhook `json:"slack"`
	Webhook struct {
		Url     string            `json:"url"`
		Headers map[string]string `json:"headers"`
	} `json:"webhook"`
}

type Configuration struct {
	ProjectName     string               `json:"project_name" envconfig:"SETTLD_PROJECT_NAME"`
	EnableTelemetry bool                 `json:"enable_telemetry" envconfig:"SETTLD_ENABLE_TELEMETRY"`
	Server          ServerConfig         `json:"server"`
	DataSource      DataSourceConfig     `json:"data_source"`
	Reconciliation  ReconciliationConfig `json:"reconciliation"`
	Notification    Notification         `json:"notification"`
}

func loadConfigFromFile(file string) error {
	var cnf Configuration
	_, err := os.Stat(file)
	if err == nil {
		f, err := os.Open(file)
		if err != nil {
			return err
		}
		err = json.NewDecoder(f).Decode(&cnf)
		if err != nil {
			return err
		}

	} else if errors.Is(err, os.ErrNotExist) {
		log.Println("config json not passed, will use env variables")
	}

	// override config from environment variables
	err = envconfig.Process("settld", &cnf)
	if err != nil {
		return err
	}

	err = cnf.validateAndAddDefaults()
	if err != nil {
		return err
	}

	ConfigStore.Store(&cnf)
	return err
}

func InitConfig(configFile string) error {
	logger()
	return loadConfigFromFile(configFile)
}

func Fetch() (*Configuration, error) {
	config := ConfigStore.Load()
	c, ok := config.(*Configuration)
	if !ok {
		return nil, errors.New("config not loaded from file. Create a json file called settld.json with your config ❌")
	}
	return c, nil
}

func (cnf *Configuration) validateAndAddDefaults() error {
	if cnf.ProjectName == "" {
		log.Println("Warning: Project name is empty. Setting a default name.")
		cnf.ProjectName = "Settld Server"
	}

	if cnf.DataSource.Dns == "" {
		log.Println("Error: Data source DNS is empty. It's a required field.")
		return errors.New("data source DNS is required")
	}

	// Trim white spaces from fields
	cnf.ProjectName = strings.TrimSpace(cnf.ProjectName)
	cnf.Server.Port = strings.TrimSpace(cnf.Server.Port)
	cnf.DataSource.Dns = strings.TrimSpace(cnf.DataSource.Dns)

	// Set default value for Port if it's empty
	if cnf.Server.Port == "" {
		cnf.Server.Port = DEFAULT_PORT
		log.Printf("Warning: Port not specified in config. Setting default port: %s", DEFAULT_PORT)
	}

	if cnf.Reconciliation.AmountTolerance < 0 {
		return errors.New("amount tolerance must be non-negative")
	}
	if cnf.Reconciliation.DateWindowDays == 0 {
		cnf.Reconciliation.DateWindowDays = 3
	}
	if cnf.Reconciliation.MatchThreshold == 0 {
		cnf.Reconciliation.MatchThreshold = 90
	}
	if cnf.Reconciliation.PartialThreshold == 0 {
		cnf.Reconciliation.PartialThreshold = 60
	}
	if cnf.Reconciliation.PartialThreshold > cnf.Reconciliation.MatchThreshold {
		return errors.New("partial threshold cannot exceed match threshold")
	}

	return nil
}

// MockConfig sets a mock configuration for testing purposes.
func MockConfig(mockConfig *Configuration) {
	ConfigStore.Store(mockConfig)
}

func logger() {
	logger := logrus.New()
	log.SetOutput(logger.Writer())
}
