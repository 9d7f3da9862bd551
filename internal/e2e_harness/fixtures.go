package e2e_harness

import (
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/lychee-technology/docschema"
)

// LibrarySchemas returns a small users/books model with every kind of
// reference edge.
func LibrarySchemas() map[string]*docschema.Schema {
	return map[string]*docschema.Schema{
		"users": docschema.NewSchema(
			docschema.F("name", docschema.String().WithRequired()),
			docschema.F("email", docschema.String().WithUnique()),
		),
		"books": docschema.NewSchema(
			docschema.F("title", docschema.String().WithRequired()),
			docschema.F("author", docschema.Reference("users", "name").WithRequired()),
			docschema.F("editor", docschema.Reference("users", "name")),
			docschema.F("reviewers", docschema.ListOfReferences("users", "name")),
			docschema.F("chapters", docschema.ListOfObjects(docschema.NewSchema(
				docschema.F("heading", docschema.String().WithUnique()),
				docschema.F("pages", docschema.Integer().WithDefault(1)),
			))),
		),
	}
}

// SeedLibrary registers the library schemas and inserts two users and a
// book written by the first and edited and reviewed by the second.
func SeedLibrary(ctx context.Context, engine docschema.Engine) (authorID, editorID, bookID any, err error) {
	schemas := LibrarySchemas()
	for _, name := range []string{"users", "books"} {
		if err := engine.RegisterSchema(name, schemas[name]); err != nil {
			return nil, nil, nil, fmt.Errorf("register %s: %w", name, err)
		}
	}
	users, err := engine.Collection("users")
	if err != nil {
		return nil, nil, nil, err
	}
	books, err := engine.Collection("books")
	if err != nil {
		return nil, nil, nil, err
	}
	opts := docschema.WriteOptions{Username: "seed"}
	if authorID, err = users.Insert(ctx, map[string]any{"name": "Ada", "email": "ada@example.com"}, opts); err != nil {
		return nil, nil, nil, fmt.Errorf("insert author: %w", err)
	}
	if editorID, err = users.Insert(ctx, map[string]any{"name": "Ed", "email": "ed@example.com"}, opts); err != nil {
		return nil, nil, nil, fmt.Errorf("insert editor: %w", err)
	}
	bookID, err = books.Insert(ctx, map[string]any{
		"title":     "Notes",
		"author":    authorID,
		"editor":    editorID,
		"reviewers": []any{editorID},
		"chapters":  []any{map[string]any{"heading": "One"}, map[string]any{"heading": "Two", "pages": 12}},
	}, opts)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("insert book: %w", err)
	}
	return authorID, editorID, bookID, nil
}

// ObjectSize reports the size of an uploaded object.
func ObjectSize(ctx context.Context, endpoint, bucket, key string) (int64, error) {
	cfg, err := config.LoadDefaultConfig(ctx,
		config.WithRegion("us-east-1"),
		config.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(s3AccessKey, s3SecretKey, "")),
		config.WithBaseEndpoint(endpoint),
	)
	if err != nil {
		return 0, fmt.Errorf("load aws config: %w", err)
	}
	client := s3.NewFromConfig(cfg, func(o *s3.Options) { o.UsePathStyle = true })
	out, err := client.HeadObject(ctx, &s3.HeadObjectInput{Bucket: aws.String(bucket), Key: aws.String(key)})
	if err != nil {
		return 0, fmt.Errorf("head object: %w", err)
	}
	return aws.ToInt64(out.ContentLength), nil
}
