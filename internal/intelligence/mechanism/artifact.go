package mechanism

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"slices"
	"time"

	"github.com/turtacn/ChemPredict/internal/intelligence/forest"
	"github.com/turtacn/ChemPredict/pkg/errors"
)

// Default blob names, relative to the model directory or bucket prefix.
const (
	DefaultClassifierName = "chemistry_model_v2.json"
	DefaultEncodersName   = "label_encoders.json"

	// FormatVersion is bumped whenever the blob layout changes.
	FormatVersion = 3

	architecture = "random_forest"
)

// Messages shown when an artifact cannot be found.
const (
	ModelNotFoundTitle    = "Model Not Found"
	ModelNotFoundMessage  = "The required machine learning model could not be found.\nPlease train the model first using the training script."
	EncodersNotFoundTitle = "Encoders Not Found"
	EncodersNotFoundMsg   = "The required label encoders could not be found.\nPlease train the model first using the training script."
)

// Fields set on ArtifactMissing errors so callers can tell the blobs apart.
const (
	FieldClassifier = "classifier"
	FieldEncoders   = "encoders"
)

// BlobStore persists named artifact blobs.  Get must return an
// ArtifactMissing error for an absent name.
type BlobStore interface {
	Put(ctx context.Context, name string, data []byte) error
	Get(ctx context.Context, name string) ([]byte, error)
	Exists(ctx context.Context, name string) (bool, error)
}

// ArtifactNames names the two blobs of one artifact.
type ArtifactNames struct {
	Classifier string
	Encoders   string
}

// DefaultArtifactNames returns the standard blob names.
func DefaultArtifactNames() ArtifactNames {
	return ArtifactNames{Classifier: DefaultClassifierName, Encoders: DefaultEncodersName}
}

// Metadata describes a trained model.
type Metadata struct {
	ModelID      string             `json:"model_id"`
	ModelName    string             `json:"model_name"`
	Version      string             `json:"version"`
	Format       int                `json:"format"`
	Architecture string             `json:"architecture"`
	TrainedAt    time.Time          `json:"trained_at"`
	Rows         int                `json:"rows"`
	Features     []string           `json:"features"`
	Classes      []string           `json:"classes"`
	Metrics      map[string]float64 `json:"metrics"`
	Parameters   forest.Params      `json:"parameters"`
	// Checksum is the SHA-256 of the encoder blob saved with the model.
	Checksum string `json:"checksum,omitempty"`
}

// Artifact is a fitted classifier with its encoders.
type Artifact struct {
	Metadata Metadata
	Forest   *forest.Forest
	Encoders *Encoders
}

type classifierBlob struct {
	Metadata Metadata             `json:"metadata"`
	Forest   *forest.Forest `json:"forest"`
}

// Validate checks that the forest and encoders agree.
func (a *Artifact) Validate() error {
	if a == nil || a.Forest == nil {
		return errors.New(errors.ErrCodeArtifactCorrupt, "artifact has no classifier")
	}
	if err := a.Forest.Validate(); err != nil {
		return err
	}
	if err := a.Encoders.Validate(); err != nil {
		return err
	}
	want := a.Encoders.Schema()
	got := a.Forest.Schema
	if !slices.Equal(got.Classes, want.Classes) {
		return errors.Newf(errors.ErrCodeArtifactCorrupt,
			"classifier classes %v differ from encoder classes %v", got.Classes, want.Classes)
	}
	if len(got.Columns) != len(want.Columns) {
		return errors.Newf(errors.ErrCodeArtifactCorrupt,
			"classifier expects %d features, encoders provide %d", len(got.Columns), len(want.Columns))
	}
	for i, c := range want.Columns {
		if got.Columns[i].Name != c.Name || !slices.Equal(got.Columns[i].Values, c.Values) {
			return errors.Newf(errors.ErrCodeArtifactCorrupt, "classifier column %s disagrees with its encoder", c.Name)
		}
	}
	return nil
}

// SaveArtifact writes the encoder blob then the classifier blob.  The
// classifier is written last so a watcher that keys on it sees a complete
// pair.
func SaveArtifact(ctx context.Context, store BlobStore, names ArtifactNames, a *Artifact) error {
	if err := a.Validate(); err != nil {
		return err
	}
	encRaw, err := json.Marshal(a.Encoders.blob(a.Metadata.ModelID))
	if err != nil {
		return errors.Wrap(err, errors.ErrCodeSerialization, "failed to encode label encoders")
	}
	a.Metadata.Checksum = checksum(encRaw)

	clfRaw, err := json.Marshal(classifierBlob{Metadata: a.Metadata, Forest: a.Forest})
	if err != nil {
		return errors.Wrap(err, errors.ErrCodeSerialization, "failed to encode classifier")
	}
	if err := store.Put(ctx, names.Encoders, encRaw); err != nil {
		return errors.Wrap(err, errors.ErrCodeStorageError, "failed to store label encoders").WithDetail(names.Encoders)
	}
	if err := store.Put(ctx, names.Classifier, clfRaw); err != nil {
		return errors.Wrap(err, errors.ErrCodeStorageError, "failed to store classifier").WithDetail(names.Classifier)
	}
	return nil
}

// LoadArtifact reads and validates both blobs.  A missing blob yields
// ArtifactMissing with Field set to FieldClassifier or FieldEncoders; an
// undecodable or inconsistent one yields ArtifactCorrupt.
func LoadArtifact(ctx context.Context, store BlobStore, names ArtifactNames) (*Artifact, error) {
	clfRaw, err := fetch(ctx, store, names.Classifier, FieldClassifier, ModelNotFoundMessage)
	if err != nil {
		return nil, err
	}
	encRaw, err := fetch(ctx, store, names.Encoders, FieldEncoders, EncodersNotFoundMsg)
	if err != nil {
		return nil, err
	}

	var clf classifierBlob
	if err := json.Unmarshal(clfRaw, &clf); err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeArtifactCorrupt, "failed to decode classifier").WithDetail(names.Classifier)
	}
	var enc encodersBlob
	if err := json.Unmarshal(encRaw, &enc); err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeArtifactCorrupt, "failed to decode label encoders").WithDetail(names.Encoders)
	}
	if sum := clf.Metadata.Checksum; sum != "" && sum != checksum(encRaw) {
		return nil, errors.New(errors.ErrCodeArtifactCorrupt, "label encoders do not match the classifier checksum").
			WithDetail(names.Encoders)
	}
	if clf.Metadata.ModelID != "" && enc.ModelID != clf.Metadata.ModelID {
		return nil, errors.New(errors.ErrCodeArtifactCorrupt, "label encoders belong to a different model").
			WithDetail(enc.ModelID + " != " + clf.Metadata.ModelID)
	}

	a := &Artifact{Metadata: clf.Metadata, Forest: clf.Forest, Encoders: enc.encoders()}
	if err := a.Validate(); err != nil {
		return nil, err
	}
	return a, nil
}

func checksum(raw []byte) string {
	sum := sha256.Sum256(raw)
	return hex.EncodeToString(sum[:])
}

func fetch(ctx context.Context, store BlobStore, name, field, missing string) ([]byte, error) {
	raw, err := store.Get(ctx, name)
	if err == nil {
		return raw, nil
	}
	if errors.IsArtifactMissing(err) {
		return nil, errors.New(errors.ErrCodeArtifactMissing, missing).WithDetail(name).WithField(field).WithCause(err)
	}
	return nil, errors.Wrap(err, errors.ErrCodeStorageError, "failed to read artifact").WithDetail(name)
}

// ArtifactExists reports whether both blobs are present.
func ArtifactExists(ctx context.Context, store BlobStore, names ArtifactNames) (bool, error) {
	for _, n := range []string{names.Classifier, names.Encoders} {
		ok, err := store.Exists(ctx, n)
		if err != nil {
			return false, errors.Wrap(err, errors.ErrCodeStorageError, "failed to stat artifact").WithDetail(n)
		}
		if !ok {
			return false, nil
		}
	}
	return true, nil
}

// MissingTitle returns the dialog title for an ArtifactMissing error.
func MissingTitle(err error) string {
	if ae, ok := errors.AsAppError(err); ok && ae.Field == FieldEncoders {
		return EncodersNotFoundTitle
	}
	return ModelNotFoundTitle
}
