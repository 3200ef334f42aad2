package common

import (
	"crypto/rand"
	"encoding/base64"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/pkg/errors"
)

const (
	ArticlePageSize = 10
	ListPageSize    = 20
)

// PageNumber reads the 1-indexed page from the query string or the form.
// Missing, non-numeric or non-positive values yield 1.
func PageNumber(c *gin.Context) int {
	raw := c.Query("page")
	if raw == "" {
		raw = c.PostForm("page")
	}
	return ParsePage(raw)
}

func ParsePage(raw string) int {
	page, err := strconv.Atoi(strings.TrimSpace(raw))
	if err != nil || page < 1 {
		return 1
	}
	return page
}

// Offset is the number of rows to skip to reach page.
func Offset(page, size int) int {
	if page < 1 {
		page = 1
	}
	return (page - 1) * size
}

// SplitTags turns "go, rust,go" into ["go", "rust"].
func SplitTags(raw string) []string {
	var tags []string
	seen := make(map[string]bool)
	for _, tag := range strings.Split(raw, ",") {
		tag = strings.ToLower(strings.TrimSpace(tag))
		if tag == "" || seen[tag] {
			continue
		}
		seen[tag] = true
		tags = append(tags, tag)
	}
	return tags
}

// GenerateToken returns 32 random bytes, base64url encoded.
func GenerateToken() (string, error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", errors.Wrap(err, "generate token")
	}
	return base64.URLEncoding.EncodeToString(b), nil
}
