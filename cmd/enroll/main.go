// Command enroll bulk-loads Person/PersonFace rows from a directory of
// enrollment photos, one subdirectory per person:
//
//	enroll/
//	  alice/
//	    photo1.jpg
//	    photo2.png
//	  bob/
//	    photo1.jpg
//
// Each image must contain exactly one face; images with zero or multiple
// faces are reported on stderr and counted as skipped rather than
// aborting the run.
package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"sync"

	"github.com/google/uuid"
	"github.com/joho/godotenv"
	"github.com/schollz/progressbar/v3"
	"github.com/spf13/cobra"
	ort "github.com/yalue/onnxruntime_go"

	"github.com/technosupport/sentinel/internal/annindex"
	"github.com/technosupport/sentinel/internal/config"
	"github.com/technosupport/sentinel/internal/models"
	"github.com/technosupport/sentinel/internal/repository"
	"github.com/technosupport/sentinel/internal/storage"
	"github.com/technosupport/sentinel/internal/vision"
)

var imageExts = map[string]bool{".jpg": true, ".jpeg": true, ".png": true, ".bmp": true, ".webp": true}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

var (
	configPath string
	orgIDFlag  string
	concurrent int
)

var rootCmd = &cobra.Command{
	Use:   "enroll",
	Short: "Bulk-enroll persons and faces from a directory of photos",
}

func init() {
	cobra.OnInitialize(func() { _ = godotenv.Load() })
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "configs/config.yaml", "path to config file")
	rootCmd.AddCommand(loadCmd)

	loadCmd.Flags().StringVar(&orgIDFlag, "organization", "", "organization id to enroll persons under (required)")
	loadCmd.Flags().IntVar(&concurrent, "concurrency", 4, "number of images processed in parallel")
	_ = loadCmd.MarkFlagRequired("organization")
}

var loadCmd = &cobra.Command{
	Use:   "load <directory>",
	Short: "Enroll every person subdirectory under <directory>",
	Args:  cobra.ExactArgs(1),
	RunE:  runLoad,
}

func runLoad(cmd *cobra.Command, args []string) error {
	root := args[0]

	orgID, err := parseOrgID(orgIDFlag)
	if err != nil {
		return err
	}

	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	ctx := context.Background()

	store, err := repository.NewPostgres(ctx, cfg.Database)
	if err != nil {
		return fmt.Errorf("connect to postgres: %w", err)
	}
	defer store.Close()

	minioStore, err := storage.NewMinIOStore(cfg.MinIO)
	if err != nil {
		return fmt.Errorf("connect to minio: %w", err)
	}

	ort.SetSharedLibraryPath(onnxLibPath())
	if err := ort.InitializeEnvironment(); err != nil {
		return fmt.Errorf("init onnx runtime: %w", err)
	}
	defer ort.DestroyEnvironment()

	capability, err := vision.NewCapability(vision.Config{
		ModelsDir:          cfg.Vision.ModelsDir,
		DetectionThreshold: float32(cfg.Vision.DetectionThreshold),
	})
	if err != nil {
		return fmt.Errorf("init vision capability: %w", err)
	}
	defer capability.Close()

	index := annindex.New(store.PersonFaces())
	if err := index.Initialize(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "warning: ann index bootstrap failed: %v\n", err)
	}

	people, err := discoverPeople(root)
	if err != nil {
		return err
	}
	if len(people) == 0 {
		fmt.Println("no person subdirectories found")
		return nil
	}

	totalImages := 0
	for _, p := range people {
		totalImages += len(p.images)
	}
	fmt.Printf("found %d persons, %d images\n", len(people), totalImages)

	bar := progressbar.NewOptions(totalImages,
		progressbar.OptionSetDescription("enrolling faces"),
		progressbar.OptionShowCount(),
		progressbar.OptionShowIts(),
		progressbar.OptionSetItsString("images"),
		progressbar.OptionShowElapsedTimeOnFinish(),
		progressbar.OptionSetPredictTime(true),
		progressbar.OptionFullWidth(),
	)

	var enrolled, skipped int
	var mu sync.Mutex
	sem := make(chan struct{}, concurrent)
	var wg sync.WaitGroup

	for _, p := range people {
		person := &models.Person{
			OrganizationID: orgID,
			Name:           p.name,
			Status:         models.PersonActive,
		}
		if err := store.Persons().Create(ctx, person); err != nil {
			fmt.Fprintf(os.Stderr, "\ncreate person %q: %v\n", p.name, err)
			continue
		}

		for _, imgPath := range p.images {
			wg.Add(1)
			go func(personID uuid.UUID, name, path string) {
				defer wg.Done()
				sem <- struct{}{}
				defer func() { <-sem }()
				defer bar.Add(1)

				ok := enrollOne(ctx, store, index, minioStore, capability, orgID, personID, name, path)
				mu.Lock()
				if ok {
					enrolled++
				} else {
					skipped++
				}
				mu.Unlock()
			}(person.ID, person.Name, imgPath)
		}
	}

	wg.Wait()
	fmt.Println()
	fmt.Printf("enrolled %d faces, skipped %d\n", enrolled, skipped)
	return nil
}

func enrollOne(ctx context.Context, store repository.Store, index *annindex.Index, minioStore *storage.MinIOStore, capability *vision.Capability, orgID, personID uuid.UUID, personName, path string) bool {
	data, err := os.ReadFile(path)
	if err != nil {
		fmt.Fprintf(os.Stderr, "\nread %s: %v\n", path, err)
		return false
	}

	result, err := capability.Detect(data)
	if err != nil {
		fmt.Fprintf(os.Stderr, "\ndetect %s: %v\n", path, err)
		return false
	}
	if len(result.Faces) != 1 {
		fmt.Fprintf(os.Stderr, "\n%s: expected exactly one face, found %d\n", path, len(result.Faces))
		return false
	}
	face := result.Faces[0]

	key := "enrollment/" + personID.String() + "/" + filepath.Base(path)
	if err := minioStore.PutObject(ctx, key, data, "image/jpeg"); err != nil {
		fmt.Fprintf(os.Stderr, "\nstore %s: %v\n", path, err)
		return false
	}

	pf := &models.PersonFace{
		OrganizationID: orgID,
		PersonID:       personID,
		Embedding:      face.Embedding,
		Reliability:    face.Confidence,
		Status:         models.FaceActive,
		SourceImageURL: key,
	}
	if err := store.PersonFaces().Create(ctx, pf); err != nil {
		fmt.Fprintf(os.Stderr, "\npersist face %s: %v\n", path, err)
		return false
	}

	if err := index.Add(ctx, annindex.EnrollableFace{
		PersonFaceID: pf.ID,
		PersonID:     personID,
		PersonName:   personName,
		Embedding:    face.Embedding,
	}); err != nil {
		fmt.Fprintf(os.Stderr, "\nindex add %s: %v\n", path, err)
		return false
	}

	return true
}

type person struct {
	name   string
	images []string
}

func discoverPeople(root string) ([]person, error) {
	entries, err := os.ReadDir(root)
	if err != nil {
		return nil, fmt.Errorf("read directory: %w", err)
	}

	var people []person
	for _, e := range entries {
		if !e.IsDir() {
			continue
		}
		dir := filepath.Join(root, e.Name())
		files, err := os.ReadDir(dir)
		if err != nil {
			continue
		}
		var images []string
		for _, f := range files {
			if f.IsDir() {
				continue
			}
			if imageExts[strings.ToLower(filepath.Ext(f.Name()))] {
				images = append(images, filepath.Join(dir, f.Name()))
			}
		}
		if len(images) > 0 {
			people = append(people, person{name: e.Name(), images: images})
		}
	}
	return people, nil
}

func parseOrgID(raw string) (uuid.UUID, error) {
	id, err := uuid.Parse(raw)
	if err != nil {
		return uuid.UUID{}, fmt.Errorf("invalid --organization: %w", err)
	}
	return id, nil
}

func onnxLibPath() string {
	switch runtime.GOOS {
	case "windows":
		return "onnxruntime.dll"
	case "darwin":
		return "libonnxruntime.dylib"
	default:
		return "libonnxruntime.so"
	}
}
