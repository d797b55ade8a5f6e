package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"sneaker-review-service/internal/domain"
	"sneaker-review-service/internal/store"
)

var (
	// add-sneaker flags
	sneakerName     string
	sneakerBrand    string
	sneakerImage    string
	sneakerCategory int64
)

// catalogCmd groups the administrator commands. End users never create
// categories or sneakers; they only review them.
var catalogCmd = &cobra.Command{
	Use:   "catalog",
	Short: "Administer categories, sneakers and users",
}

var addCategoryCmd = &cobra.Command{
	Use:   "add-category NAME",
	Short: "Create a category",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		name := strings.TrimSpace(args[0])
		if name == "" || len([]rune(name)) > 100 {
			return errors.New("category name must be 1 to 100 characters")
		}
		return withStore(cmd, func(ctx context.Context, st *store.PostgresStore) error {
			created, err := st.CreateCategory(ctx, &domain.Category{Name: name})
			if err != nil {
				return err
			}
			return printJSON(cmd, created)
		})
	},
}

var addSneakerCmd = &cobra.Command{
	Use:   "add-sneaker",
	Short: "Create a sneaker",
	Example: `  sneaker-reviews catalog add-sneaker --name "Air Max 90" --brand Nike --category 1 \
    --image tenis_imagens/air-max-90.jpg`,
	RunE: func(cmd *cobra.Command, args []string) error {
		sneaker := &domain.Sneaker{
			Name:  strings.TrimSpace(sneakerName),
			Brand: strings.TrimSpace(sneakerBrand),
		}
		if sneaker.Name == "" || len([]rune(sneaker.Name)) > 200 {
			return errors.New("--name must be 1 to 200 characters")
		}
		if sneaker.Brand == "" || len([]rune(sneaker.Brand)) > 100 {
			return errors.New("--brand must be 1 to 100 characters")
		}
		if sneakerImage != "" {
			image := strings.TrimPrefix(sneakerImage, "/")
			if len([]rune(image)) > 100 {
				return errors.New("--image must be at most 100 characters")
			}
			sneaker.PrimaryImage = &image
		}
		if cmd.Flags().Changed("category") {
			if sneakerCategory <= 0 {
				return errors.New("--category must be a positive id")
			}
			categoryID := sneakerCategory
			sneaker.CategoryID = &categoryID
		}
		return withStore(cmd, func(ctx context.Context, st *store.PostgresStore) error {
			created, err := st.CreateSneaker(ctx, sneaker)
			if err != nil {
				return err
			}
			return printJSON(cmd, created)
		})
	},
}

// deleteCmd builds a delete-<kind> command over one store method.
func deleteCmd(kind, note string, del func(*store.PostgresStore, context.Context, int64) error) *cobra.Command {
	return &cobra.Command{
		Use:   "delete-" + kind + " ID",
		Short: "Delete a " + kind + ". " + note,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := strconv.ParseInt(args[0], 10, 64)
			if err != nil || id <= 0 {
				return fmt.Errorf("invalid %s id %q", kind, args[0])
			}
			return withStore(cmd, func(ctx context.Context, st *store.PostgresStore) error {
				if err := del(st, ctx, id); err != nil {
					return err
				}
				cmd.Printf("%s %d deleted\n", kind, id)
				return nil
			})
		},
	}
}

func init() {
	rootCmd.AddCommand(catalogCmd)

	addSneakerCmd.Flags().StringVar(&sneakerName, "name", "", "Model name")
	addSneakerCmd.Flags().StringVar(&sneakerBrand, "brand", "", "Brand")
	addSneakerCmd.Flags().StringVar(&sneakerImage, "image", "", "Image path relative to MEDIA_ROOT")
	addSneakerCmd.Flags().Int64Var(&sneakerCategory, "category", 0, "Category id")
	_ = addSneakerCmd.MarkFlagRequired("name")
	_ = addSneakerCmd.MarkFlagRequired("brand")

	catalogCmd.AddCommand(
		addCategoryCmd,
		addSneakerCmd,
		deleteCmd("category", "Its sneakers are kept without a category.", (*store.PostgresStore).DeleteCategory),
		deleteCmd("sneaker", "Its reviews are deleted too.", (*store.PostgresStore).DeleteSneaker),
		deleteCmd("user", "The user's reviews are deleted too.", (*store.PostgresStore).DeleteUser),
	)
}

func withStore(cmd *cobra.Command, fn func(context.Context, *store.PostgresStore) error) error {
	cfg, logger, err := loadConfig()
	if err != nil {
		return err
	}
	db, err := openDB(cmd.Context(), cfg.Postgres)
	if err != nil {
		return err
	}
	st := store.NewPostgresStore(db)
	defer func() {
		if err := st.Close(); err != nil {
			logger.WithError(err).Warn("error closing database")
		}
	}()
	return fn(cmd.Context(), st)
}

func printJSON(cmd *cobra.Command, v interface{}) error {
	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
