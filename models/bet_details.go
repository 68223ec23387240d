package models

import (
	"fmt"
	"strings"
)

// BetDetails is the immutable description of a proposition
type BetDetails struct {
	Title       string   `yaml:"title"`
	Description string   `yaml:"description"`
	IconURL     string   `yaml:"icon_url"`
	ForumURL    string   `yaml:"forum_url"`
	Options     []string `yaml:"options"`
}

// Validate checks the details against the configured bounds and forum allow-list
func (d *BetDetails) Validate(cfg *BetConfig) error {
	title := strings.TrimSpace(d.Title)
	if title == "" {
		return fmt.Errorf("%w: title is required", ErrInvalidDetails)
	}
	if cfg.MaxTitleLength > 0 && len(title) > cfg.MaxTitleLength {
		return fmt.Errorf("%w: title exceeds %d characters", ErrInvalidDetails, cfg.MaxTitleLength)
	}

	description := strings.TrimSpace(d.Description)
	if description == "" {
		return fmt.Errorf("%w: description is required", ErrInvalidDetails)
	}
	if cfg.MaxDescriptionLength > 0 && len(description) > cfg.MaxDescriptionLength {
		return fmt.Errorf("%w: description exceeds %d characters", ErrInvalidDetails, cfg.MaxDescriptionLength)
	}

	if len(d.Options) < cfg.MinOptions || len(d.Options) > cfg.MaxOptions {
		return fmt.Errorf("%w: need between %d and %d options, got %d", ErrInvalidDetails, cfg.MinOptions, cfg.MaxOptions, len(d.Options))
	}
	seen := make(map[string]bool, len(d.Options))
	for i, opt := range d.Options {
		key := strings.ToLower(strings.TrimSpace(opt))
		if key == "" {
			return fmt.Errorf("%w: option %d is empty", ErrInvalidDetails, i)
		}
		if seen[key] {
			return fmt.Errorf("%w: duplicate option %q", ErrInvalidDetails, opt)
		}
		seen[key] = true
	}

	if !cfg.forumAllowed(d.ForumURL) {
		return fmt.Errorf("%w: forum url %q is not on the allow-list", ErrInvalidDetails, d.ForumURL)
	}
	return nil
}

// Clone returns a deep copy
func (d BetDetails) Clone() BetDetails {
	out := d
	out.Options = append([]string(nil), d.Options...)
	return out
}

func (c *BetConfig) forumAllowed(url string) bool {
	if len(c.ForumURLPrefixes) == 0 {
		return true
	}
	for _, prefix := range c.ForumURLPrefixes {
		if strings.HasPrefix(url, prefix) {
			return true
		}
	}
	return false
}
