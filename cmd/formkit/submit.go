package main

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/yanizio/formkit/internal/controller"
	"github.com/yanizio/formkit/internal/form"
	"github.com/yanizio/formkit/internal/submit"
	"github.com/yanizio/formkit/internal/upload"
)

var (
	submitForm   string
	submitValues string
	submitFiles  []string
)

var submitCmd = &cobra.Command{
	Use:   "submit",
	Short: "Run one submission attempt from a values file",
	Example: `  formkit submit --form job-application --values ada.yaml --file resume=cv.pdf`,
	RunE: func(cmd *cobra.Command, args []string) error {
		e, err := bootstrap()
		if err != nil {
			return err
		}
		spec, err := e.reg.Lookup(submitForm)
		if err != nil {
			return err
		}

		src := form.Fields{}
		if submitValues != "" {
			if src, err = readValues(submitValues); err != nil {
				return err
			}
		}

		ui := controller.NewRecorder(spec.SubmitLabel)
		c, err := controller.New(spec, controller.Deps{
			UI:         ui,
			Source:     src,
			Client:     submit.New(submit.WithTimeout(e.cfg.Submit.Timeout), submit.WithLogger(e.log)),
			Phone:      e.phoneFactory(),
			DisplayFor: e.cfg.Controller.DisplayFor,
			Log:        e.log,
		})
		if err != nil {
			return err
		}
		defer c.Unmount()

		for _, arg := range submitFiles {
			field, path, ok := strings.Cut(arg, "=")
			if !ok {
				return fmt.Errorf("--file %q: want field=path", arg)
			}
			f, err := upload.Local(path)
			if err != nil {
				return err
			}
			rejected, err := c.Select(field, f)
			if err != nil {
				return err
			}
			for _, fe := range rejected {
				fmt.Fprintf(cmd.ErrOrStderr(), "file refused: %s\n", fe.Message)
			}
		}

		a, err := c.Submit(cmd.Context())
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "%s: %s\n", a.Result(), a.Message)
		if a.Phase != controller.Succeeded {
			return fmt.Errorf("attempt ended in %s", a.Phase)
		}
		return nil
	},
}

func init() {
	submitCmd.Flags().StringVar(&submitForm, "form", "", "form id")
	submitCmd.Flags().StringVar(&submitValues, "values", "", "YAML or JSON file mapping field names to values")
	submitCmd.Flags().StringArrayVar(&submitFiles, "file", nil, "attach a file as field=path (repeatable)")
	_ = submitCmd.MarkFlagRequired("form")
}

// readValues decodes a flat mapping.  Lists become checkbox groups, booleans
// become checked ("on") or unchecked (absent) checkboxes.
func readValues(path string) (form.Fields, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read values: %w", err)
	}
	var doc map[string]any
	if err := yaml.Unmarshal(raw, &doc); err != nil {
		return nil, fmt.Errorf("parse values %s: %w", path, err)
	}

	out := form.Fields{}
	for k, v := range doc {
		switch t := v.(type) {
		case nil:
		case bool:
			if t {
				out[k] = []string{"on"}
			}
		case []any:
			for _, item := range t {
				out[k] = append(out[k], scalar(item))
			}
		default:
			out[k] = []string{scalar(t)}
		}
	}
	return out, nil
}

func scalar(v any) string {
	switch t := v.(type) {
	case string:
		return t
	case nil:
		return ""
	default:
		b, _ := json.Marshal(t)
		return string(b)
	}
}
