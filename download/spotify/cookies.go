package spotify

import (
	"bufio"
	"fmt"
	"net/http"
	"os"
	"strings"
)

// ParseCookiesFile reads a Netscape cookies.txt file.
func ParseCookiesFile(path string) ([]*http.Cookie, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open cookies file: %w", err)
	}
	defer f.Close()

	var cookies []*http.Cookie
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		if strings.HasPrefix(line, "#HttpOnly_") {
			line = strings.TrimPrefix(line, "#HttpOnly_")
		} else if strings.HasPrefix(line, "#") {
			continue
		}

		fields := strings.Split(line, "\t")
		if len(fields) < 7 {
			continue
		}
		cookies = append(cookies, &http.Cookie{
			Domain: fields[0],
			Path:   fields[2],
			Secure: strings.EqualFold(fields[3], "TRUE"),
			Name:   fields[5],
			Value:  fields[6],
		})
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("failed to read cookies file: %w", err)
	}
	return cookies, nil
}

// SpDC returns the value of the sp_dc cookie.
func SpDC(cookies []*http.Cookie) (string, error) {
	for _, c := range cookies {
		if c.Name == "sp_dc" {
			return c.Value, nil
		}
	}
	return "", &SpotifyError{Message: "sp_dc cookie not found in cookies file"}
}
