// Package veloxrm is the unit of work and reference tracking core of a
// record manager for relational databases.
//
// A Manager is a session over the tables of a schema. It keeps one record
// instance per primary key, tracks which owning records point to which
// referenced records for every relation, and collects scheduled saves and
// deletes until they are committed in foreign key order:
//
//	rm, err := veloxrm.New(drv, s)
//	if err != nil {
//	    return err
//	}
//	user, _ := rm.Table("user").NewRecord(map[string]any{"username": "ada"})
//	author, _ := rm.Table("author").NewRecord(map[string]any{"name": "Ada"})
//	if err := author.SetReference(ctx, "User", user); err != nil {
//	    return err
//	}
//	if err := rm.Save(ctx, author); err != nil {
//	    return err
//	}
//	// INSERT INTO "user" ..., then INSERT INTO "author" with the new user id.
//	return rm.Commit(ctx)
//
// Deleting a referenced record applies the OnDelete action of each relation
// at scheduling time: CASCADE schedules the owners for delete, SET NULL
// schedules them for save with a null foreign key, and RESTRICT or NO
// ACTION reject the call with a *ConstraintError.
//
// A Manager is not safe for concurrent use.
package veloxrm
