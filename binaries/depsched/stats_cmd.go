package main

import (
	"fmt"
	"io/ioutil"
	"net/http"

	pkgerrors "github.com/pkg/errors"
	"github.com/sethgrid/pester"
	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/twitter/depsched/common/endpoints"
	"github.com/twitter/depsched/common/errors"
)

const defaultHttpTries = 5

type statsCmd struct {
	addr   string
	path   string
	pretty bool
	tries  int
}

func (c *statsCmd) registerFlags() *cobra.Command {
	r := &cobra.Command{
		Use:   "stats",
		Short: "Fetches JSON from a running instance's admin endpoint",
	}
	r.Flags().StringVar(&c.addr, "addr", "localhost:9091", "admin endpoint address")
	r.Flags().StringVar(&c.path, "path", endpoints.MetricsPath,
		fmt.Sprintf("admin path, e.g. %s or %s", SchedulerPath, FailedPath))
	r.Flags().BoolVar(&c.pretty, "pretty", true, "request indented JSON")
	r.Flags().IntVar(&c.tries, "tries", defaultHttpTries, "attempts before giving up")
	return r
}

func (c *statsCmd) run(cl *cli, cmd *cobra.Command, args []string) error {
	body, err := fetch(makePesterClient(c.tries), c.url())
	if err != nil {
		return errors.NewError(err, errors.StatsFetchFailureExitCode)
	}
	fmt.Println(string(body))
	return nil
}

func (c *statsCmd) url() string {
	u := fmt.Sprintf("http://%s%s", c.addr, c.path)
	if c.pretty {
		u += "?pretty=true"
	}
	return u
}

type httpGetter interface {
	Get(url string) (*http.Response, error)
}

func makePesterClient(tries int) *pester.Client {
	client := pester.New()
	client.Backoff = pester.ExponentialBackoff
	client.MaxRetries = tries
	client.LogHook = func(e pester.ErrEntry) {
		log.Errorf("Retrying after failed attempt: %+v", e)
	}
	return client
}

func fetch(client httpGetter, url string) ([]byte, error) {
	resp, err := client.Get(url)
	if err != nil {
		return nil, pkgerrors.Wrapf(err, "fetching %s", url)
	}
	defer resp.Body.Close()
	body, err := ioutil.ReadAll(resp.Body)
	if err != nil {
		return nil, pkgerrors.Wrapf(err, "reading %s", url)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, pkgerrors.Errorf("fetching %s: %s: %s", url, resp.Status, body)
	}
	return body, nil
}
