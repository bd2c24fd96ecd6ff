package main

import (
	"context"
	"crypto/tls"
	"fmt"
	"os"
	"strconv"
	"text/tabwriter"
	"time"

	"github.com/fatih/color"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials"

	"github.com/containerd/containerd/log"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.21.0"

	"github.com/picsl-hpc/synb0-lsf/pkg/config"
	"github.com/picsl-hpc/synb0-lsf/pkg/lsf"
	"github.com/picsl-hpc/synb0-lsf/pkg/synb0"
)

func initProvider(ctx context.Context) (func(context.Context) error, error) {
	res, err := resource.New(ctx,
		resource.WithAttributes(
			// the service name used to display traces in backends
			semconv.ServiceName("synb0-lsf"),
		),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create resource: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, time.Second)
	defer cancel()

	otlpEndpoint := os.Getenv("TELEMETRY_ENDPOINT")
	if otlpEndpoint == "" {
		otlpEndpoint = "localhost:4317"
	}

	creds := credentials.NewTLS(&tls.Config{InsecureSkipVerify: true})
	conn, err := grpc.DialContext(ctx, otlpEndpoint, grpc.WithTransportCredentials(creds), grpc.WithBlock())
	if err != nil {
		return nil, fmt.Errorf("failed to create gRPC connection to collector: %w", err)
	}

	// Set up a trace exporter
	traceExporter, err := otlptracegrpc.New(ctx, otlptracegrpc.WithGRPCConn(conn))
	if err != nil {
		return nil, fmt.Errorf("failed to create trace exporter: %w", err)
	}

	// Register the trace exporter with a TracerProvider, using a batch
	// span processor to aggregate spans before export.
	bsp := sdktrace.NewBatchSpanProcessor(traceExporter)
	tracerProvider := sdktrace.NewTracerProvider(
		sdktrace.WithSampler(sdktrace.AlwaysSample()),
		sdktrace.WithResource(res),
		sdktrace.WithSpanProcessor(bsp),
	)
	otel.SetTracerProvider(tracerProvider)

	// set global propagator to tracecontext (the default is no-op).
	otel.SetTextMapPropagator(propagation.TraceContext{})

	return tracerProvider.Shutdown, nil
}

func main() {
	logger := logrus.StandardLogger()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var (
		configPath string
		verbose    bool
		errorsOnly bool
	)

	var conf config.Synb0Config
	jobIDs := make(map[string]*lsf.JidStruct)
	handler := &lsf.Handler{JIDs: &jobIDs, Ctx: ctx}
	runner := &synb0.Runner{Ctx: ctx}

	rootCmd := &cobra.Command{
		Use:           "synb0-lsf",
		Short:         "Submit the Synb0-DISCO container to an LSF cluster",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			var err error
			conf, err = config.NewSynb0Config(configPath)
			if err != nil {
				return err
			}

			if verbose {
				conf.VerboseLogging = true
				conf.ErrorsOnlyLogging = false
			} else if errorsOnly {
				conf.VerboseLogging = false
				conf.ErrorsOnlyLogging = true
			}

			if conf.VerboseLogging {
				logger.SetLevel(logrus.DebugLevel)
			} else if conf.ErrorsOnlyLogging {
				logger.SetLevel(logrus.ErrorLevel)
			} else {
				logger.SetLevel(logrus.InfoLevel)
			}

			log.G(ctx).Debug("Debug level: " + strconv.FormatBool(conf.VerboseLogging))

			handler.Config = conf
			runner.Config = conf
			return nil
		},
	}
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "Path to Synb0 config")
	rootCmd.PersistentFlags().BoolVar(&verbose, "verbose", false, "Enable or disable Debug level logging")
	rootCmd.PersistentFlags().BoolVar(&errorsOnly, "errorsonly", false, "Prints only errors if enabled")

	rootCmd.AddCommand(newRunCmd(runner))
	rootCmd.AddCommand(newSubmitCmd(handler))
	rootCmd.AddCommand(newStatusCmd(handler))
	rootCmd.AddCommand(newCancelCmd(handler))
	rootCmd.AddCommand(newLogsCmd(handler))
	rootCmd.AddCommand(newContainersCmd(&conf, ctx))

	if os.Getenv("ENABLE_TRACING") == "1" {
		shutdown, err := initProvider(ctx)
		if err != nil {
			log.G(ctx).Fatal(err)
		}
		defer func() {
			if err = shutdown(ctx); err != nil {
				log.G(ctx).Fatal("failed to shutdown TracerProvider: ", err)
			}
		}()

		log.G(ctx).Info("Tracer setup succeeded")
	}

	if err := rootCmd.Execute(); err != nil {
		log.G(ctx).Fatal(err)
	}
}

func newRunCmd(runner *synb0.Runner) *cobra.Command {
	var opts synb0.RunOptions
	var topup bool

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run the Synb0-DISCO container on a staged INPUTS directory",
		Long: "Validates that the input directory holds T1.nii.gz and b0.nii.gz, creates a " +
			"job-scoped scratch directory and runs the container with the INPUTS/OUTPUTS/tmp " +
			"bind mounts. Arguments after -- are forwarded to the container.",
		RunE: func(cmd *cobra.Command, args []string) error {
			if dash := cmd.ArgsLenAtDash(); dash >= 0 {
				opts.ExtraArgs = args[dash:]
			}
			opts.NoTopup = !topup
			return runner.Run(opts)
		},
	}

	cmd.Flags().StringVarP(&opts.InputDir, "input-dir", "i", "", "Directory holding T1.nii.gz and b0.nii.gz")
	cmd.Flags().StringVarP(&opts.OutputDir, "output-dir", "o", "", "Directory for container outputs")
	cmd.Flags().StringVarP(&opts.ImagePath, "container", "c", "", "Explicit .sif image, overrides version resolution")
	cmd.Flags().StringVar(&opts.Version, "container-version", "", "Container version to run, defaults to the configured one")
	cmd.Flags().IntVarP(&opts.Threads, "threads", "n", 1, "Number of computational threads")
	cmd.Flags().BoolVar(&opts.Stripped, "stripped", false, "The T1 image is already skull-stripped")
	cmd.Flags().BoolVar(&topup, "topup", false, "Let the container run topup, requires FSL inside the image")
	cmd.MarkFlagRequired("input-dir")
	cmd.MarkFlagRequired("output-dir")

	return cmd
}

func newSubmitCmd(handler *lsf.Handler) *cobra.Command {
	var (
		opts        lsf.SubmitOptions
		participant string
		session     string
		sessionList string
	)

	cmd := &cobra.Command{
		Use:   "submit",
		Short: "Queue one LSF job per BIDS session",
		Long: "Queues a conda run invocation of the BIDS wrapper script per session, either a " +
			"single --participant/--session pair or every record of a --session-list CSV. " +
			"Arguments after -- are forwarded to the wrapper script.",
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := handler.LoadJIDs(); err != nil {
				return err
			}

			switch {
			case sessionList != "" && (participant != "" || session != ""):
				return fmt.Errorf("--session-list and --participant/--session are mutually exclusive")
			case sessionList != "":
				sessions, err := synb0.ReadSessionList(handler.Ctx, sessionList)
				if err != nil {
					return err
				}
				opts.Sessions = sessions
			case participant != "" && session != "":
				opts.Sessions = []synb0.Session{synb0.NewSession(participant, session)}
			default:
				return fmt.Errorf("either --session-list or both --participant and --session are required")
			}

			if dash := cmd.ArgsLenAtDash(); dash >= 0 {
				opts.ExtraArgs = args[dash:]
			}

			submitted, err := handler.Submit(opts)
			for _, job := range submitted {
				fmt.Fprintf(cmd.OutOrStdout(), "%s\t%s\n", job.Session.JobName(), job.JID)
			}
			return err
		},
	}

	cmd.Flags().StringVar(&opts.BidsDataset, "bids-dataset", "", "Input BIDS dataset")
	cmd.Flags().StringVar(&participant, "participant", "", "Participant to process")
	cmd.Flags().StringVar(&session, "session", "", "Session to process")
	cmd.Flags().StringVar(&sessionList, "session-list", "", "CSV of subject,session records to process")
	cmd.Flags().StringVarP(&opts.ImagePath, "container", "c", "", "Explicit .sif image, overrides version resolution")
	cmd.Flags().StringVar(&opts.Version, "container-version", "", "Container version to run, defaults to the configured one")
	cmd.Flags().IntVarP(&opts.Threads, "threads", "n", 0, "Number of computational threads, defaults to the configured core count")
	cmd.MarkFlagRequired("bids-dataset")

	return cmd
}

func newStatusCmd(handler *lsf.Handler) *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Report the state of every tracked job",
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := handler.LoadJIDs(); err != nil {
				return err
			}
			statuses, err := handler.Status()
			if err != nil {
				return err
			}

			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 8, 2, ' ', 0)
			fmt.Fprintln(w, "JOB\tJID\tSUBJECT\tSESSION\tSTATE\tEXIT")
			for _, status := range statuses {
				fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%d\n",
					status.JobName, status.JID, status.Participant, status.Session, status.State, status.ExitCode)
			}
			return w.Flush()
		},
	}
}

func newCancelCmd(handler *lsf.Handler) *cobra.Command {
	var all bool

	cmd := &cobra.Command{
		Use:   "cancel [job name]",
		Short: "Kill a tracked job and remove its bookkeeping",
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := handler.LoadJIDs(); err != nil {
				return err
			}
			if all {
				return handler.CancelAll()
			}
			if len(args) != 1 {
				return fmt.Errorf("expected a job name or --all")
			}
			return handler.Cancel(args[0])
		},
	}
	cmd.Flags().BoolVar(&all, "all", false, "Cancel every tracked job")

	return cmd
}

func newLogsCmd(handler *lsf.Handler) *cobra.Command {
	var follow bool

	cmd := &cobra.Command{
		Use:   "logs <job name>",
		Short: "Print the LSF log of a job",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := handler.LoadJIDs(); err != nil {
				return err
			}
			return handler.Logs(args[0], follow, cmd.OutOrStdout())
		},
	}
	cmd.Flags().BoolVarP(&follow, "follow", "f", false, "Stream the log until the job ends")

	return cmd
}

func newContainersCmd(conf *config.Synb0Config, ctx context.Context) *cobra.Command {
	return &cobra.Command{
		Use:   "containers",
		Short: "List the available synb0-disco images",
		RunE: func(cmd *cobra.Command, args []string) error {
			images, err := synb0.ListImages(ctx, conf.ContainersDir)
			if err != nil {
				return err
			}
			latest := images[len(images)-1]
			for _, image := range images {
				if image.Path == latest.Path {
					color.New(color.FgGreen).Fprintf(cmd.OutOrStdout(), "%s\tv%s\t(latest)\n", image.Path, image.Version)
				} else {
					fmt.Fprintf(cmd.OutOrStdout(), "%s\tv%s\n", image.Path, image.Version)
				}
			}
			return nil
		},
	}
}
