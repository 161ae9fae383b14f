package main

import (
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/spf13/pflag"
)

func adminRequest(out io.Writer, method, baseURL, path string, q url.Values) error {
	u := strings.TrimRight(strings.TrimSpace(baseURL), "/") + path
	if len(q) > 0 {
		u += "?" + q.Encode()
	}
	req, err := http.NewRequest(method, u, nil)
	if err != nil {
		return err
	}
	cl := &http.Client{Timeout: 10 * time.Second}
	resp, err := cl.Do(req)
	if err != nil {
		return fmt.Errorf("request: %w", err)
	}
	defer resp.Body.Close()
	b, _ := io.ReadAll(resp.Body)
	fmt.Fprint(out, string(b))
	if resp.StatusCode/100 != 2 {
		return fmt.Errorf("%s %s: %s", method, path, resp.Status)
	}
	return nil
}

func feesCmd(args []string, out io.Writer) error {
	fs := pflag.NewFlagSet("fees", pflag.ContinueOnError)
	baseURL := fs.String("url", "http://127.0.0.1:8080", "server base url")
	if err := fs.Parse(args); err != nil {
		return err
	}
	return adminRequest(out, http.MethodGet, *baseURL, "/admin/v1/fees", nil)
}

func stipendsCmd(args []string, out io.Writer) error {
	fs := pflag.NewFlagSet("stipends", pflag.ContinueOnError)
	baseURL := fs.String("url", "http://127.0.0.1:8080", "server base url")
	if err := fs.Parse(args); err != nil {
		return err
	}
	return adminRequest(out, http.MethodPost, *baseURL, "/admin/v1/stipends/run", nil)
}

func regionCmd(action string) command {
	return func(args []string, out io.Writer) error {
		fs := pflag.NewFlagSet(action, pflag.ContinueOnError)
		baseURL := fs.String("url", "http://127.0.0.1:8080", "server base url")
		id := fs.String("region", "", "region id (required)")
		if err := fs.Parse(args); err != nil {
			return err
		}
		if strings.TrimSpace(*id) == "" {
			return fmt.Errorf("missing --region")
		}
		return adminRequest(out, http.MethodPost, *baseURL, "/admin/v1/regions/"+action, url.Values{"id": {*id}})
	}
}
