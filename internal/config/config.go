// Package config provides centralized configuration management for the
// fixer. All settings come from environment variables.
package config

import (
	"fmt"
	"strings"

	"github.com/spf13/viper"
)

// Config holds all configuration parameters for a run.
type Config struct {
	Sonar     SonarConfig
	Git       GitConfig
	GitHub    GitHubConfig
	Anthropic AnthropicConfig
	App       AppConfig
}

// SonarConfig holds quality-server settings.
type SonarConfig struct {
	URL        string
	Token      string
	ProjectKey string
}

// GitConfig holds repository settings.
type GitConfig struct {
	RepoURL      string
	Username     string
	Password     string
	Email        string
	Name         string
	MasterBranch string
}

// GitHubConfig holds pull-request hosting settings.
type GitHubConfig struct {
	Token string
	Owner string
	Repo  string
}

// AnthropicConfig holds language-model settings.
type AnthropicConfig struct {
	APIKey string
	Model  string
}

// AppConfig holds application-level tunables.
type AppConfig struct {
	TempDir             string
	MaxIssuesPerRun     int
	ContextLinesBefore  int
	ContextLinesAfter   int
	MemoryFile          string
	FeedbackFile        string
	RetryAttempts       int
	RetryDelaySeconds   int
	ParallelWorkers     int
	LogLevel            string
}

// Load reads configuration from environment variables.
func Load() (*Config, error) {
	v := viper.New()
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	v.BindEnv("sonarqube.url", "SONARQUBE_URL")
	v.BindEnv("sonarqube.token", "SONARQUBE_TOKEN")
	v.BindEnv("sonarqube.project_key", "SONARQUBE_PROJECT_KEY")
	v.BindEnv("git.repo_url", "GIT_REPO_URL")
	v.BindEnv("git.username", "GIT_USERNAME")
	v.BindEnv("git.password", "GIT_PASSWORD")
	v.BindEnv("git.email", "GIT_EMAIL")
	v.BindEnv("git.name", "GIT_NAME")
	v.BindEnv("git.master_branch", "GIT_MASTER_BRANCH")
	v.BindEnv("github.token", "GITHUB_TOKEN")
	v.BindEnv("github.owner", "GITHUB_OWNER")
	v.BindEnv("github.repo", "GITHUB_REPO")
	v.BindEnv("anthropic.api_key", "ANTHROPIC_API_KEY")
	v.BindEnv("anthropic.model", "ANTHROPIC_MODEL")
	v.BindEnv("app.temp_dir", "TEMP_DIR")
	v.BindEnv("app.max_issues_per_run", "MAX_ISSUES_PER_RUN")
	v.BindEnv("app.context_lines_before", "CONTEXT_LINES_BEFORE")
	v.BindEnv("app.context_lines_after", "CONTEXT_LINES_AFTER")
	v.BindEnv("app.memory_file", "MEMORY_FILE")
	v.BindEnv("app.feedback_file", "FEEDBACK_FILE")
	v.BindEnv("app.retry_attempts", "RETRY_ATTEMPTS")
	v.BindEnv("app.retry_delay", "RETRY_DELAY")
	v.BindEnv("app.parallel_workers", "PARALLEL_WORKERS")
	v.BindEnv("app.log_level", "LOG_LEVEL")

	v.SetDefault("git.email", "sonarfix@example.com")
	v.SetDefault("git.name", "Sonar Fixer")
	v.SetDefault("git.master_branch", "master")
	v.SetDefault("app.temp_dir", "/tmp/sonarfix")
	v.SetDefault("app.max_issues_per_run", 50)
	v.SetDefault("app.context_lines_before", 10)
	v.SetDefault("app.context_lines_after", 10)
	v.SetDefault("app.memory_file", "agent_memory.json")
	v.SetDefault("app.feedback_file", "feedback.json")
	v.SetDefault("app.retry_attempts", 3)
	v.SetDefault("app.retry_delay", 5)
	v.SetDefault("app.parallel_workers", 5)

	cfg := &Config{
		Sonar: SonarConfig{
			URL:        v.GetString("sonarqube.url"),
			Token:      v.GetString("sonarqube.token"),
			ProjectKey: v.GetString("sonarqube.project_key"),
		},
		Git: GitConfig{
			RepoURL:      v.GetString("git.repo_url"),
			Username:     v.GetString("git.username"),
			Password:     v.GetString("git.password"),
			Email:        v.GetString("git.email"),
			Name:         v.GetString("git.name"),
			MasterBranch: v.GetString("git.master_branch"),
		},
		GitHub: GitHubConfig{
			Token: v.GetString("github.token"),
			Owner: v.GetString("github.owner"),
			Repo:  v.GetString("github.repo"),
		},
		Anthropic: AnthropicConfig{
			APIKey: v.GetString("anthropic.api_key"),
			Model:  v.GetString("anthropic.model"),
		},
		App: AppConfig{
			TempDir:            v.GetString("app.temp_dir"),
			MaxIssuesPerRun:    v.GetInt("app.max_issues_per_run"),
			ContextLinesBefore: v.GetInt("app.context_lines_before"),
			ContextLinesAfter:  v.GetInt("app.context_lines_after"),
			MemoryFile:         v.GetString("app.memory_file"),
			FeedbackFile:       v.GetString("app.feedback_file"),
			RetryAttempts:      v.GetInt("app.retry_attempts"),
			RetryDelaySeconds:  v.GetInt("app.retry_delay"),
			ParallelWorkers:    v.GetInt("app.parallel_workers"),
			LogLevel:           v.GetString("app.log_level"),
		},
	}

	if err := validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// validate reports every missing required variable at once so the user
// can fix their environment in one pass.
func validate(cfg *Config) error {
	var missing []string

	if cfg.Sonar.URL == "" {
		missing = append(missing, "SONARQUBE_URL")
	}
	if cfg.Sonar.Token == "" {
		missing = append(missing, "SONARQUBE_TOKEN")
	}
	if cfg.Sonar.ProjectKey == "" {
		missing = append(missing, "SONARQUBE_PROJECT_KEY")
	}
	if cfg.Git.RepoURL == "" {
		missing = append(missing, "GIT_REPO_URL")
	}
	if cfg.GitHub.Token == "" {
		missing = append(missing, "GITHUB_TOKEN")
	}
	if cfg.GitHub.Owner == "" {
		missing = append(missing, "GITHUB_OWNER")
	}
	if cfg.GitHub.Repo == "" {
		missing = append(missing, "GITHUB_REPO")
	}
	if cfg.Anthropic.APIKey == "" {
		missing = append(missing, "ANTHROPIC_API_KEY")
	}

	if len(missing) > 0 {
		return fmt.Errorf("missing required environment variables: %s", strings.Join(missing, ", "))
	}
	return nil
}
