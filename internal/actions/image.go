package actions

import (
	"context"
	"os"

	"github.com/quillagent/quill/pkg/schema"
)

var imageUploadResultType = TypeDef{
	Name:        "ImageUploadResult",
	Description: "Result from image upload",
	Properties: []PropertyDef{
		{Name: "url", Kind: "string", Description: "Public URL of uploaded image"},
	},
}

// RegisterImageActions registers the Drive image upload action.
func RegisterImageActions(r *Registry, pub Publisher) error {
	if err := r.RegisterType(imageUploadResultType); err != nil {
		return err
	}
	return r.Register(Descriptor{
		Name:           "blog_upload_image",
		Description:    "Upload an image to Google Drive and return a public URL.",
		Inputs:         []IO{{Name: "file_path", Kind: "string"}},
		Outputs:        []IO{{Name: "result", Kind: "ImageUploadResult"}},
		Postconditions: []string{"image_uploaded"},
		Cost:           0.3,
		Value:          0.5,
		CanRerun:       true,
	}, uploadImageHandler(pub))
}

func uploadImageHandler(pub Publisher) Handler {
	return func(ctx context.Context, params map[string]any) (map[string]any, error) {
		filePath := stringParam(params, "file_path", "")
		if filePath == "" {
			return nil, schema.NewError(schema.ErrCodeValidation, "file_path is required")
		}
		if _, err := os.Stat(filePath); err != nil {
			return nil, schema.NewErrorf(schema.ErrCodeValidation, "file not found: %s", filePath)
		}

		url, err := pub.UploadImage(ctx, filePath)
		if err != nil {
			return nil, err
		}
		return map[string]any{"url": url}, nil
	}
}

// RegisterAll wires every built-in action against one Publisher. Start-up
// calls this once; a non-nil error means a catalog collision and is fatal.
func RegisterAll(r *Registry, pub Publisher) error {
	if err := RegisterBlogActions(r, pub); err != nil {
		return err
	}
	return RegisterImageActions(r, pub)
}
